// Package led signals capture state on the board status LED: heartbeat
// while idle, solid while a span records, off when the session closes.
package led

// Controller drives a board status LED. The pattern is a kernel LED
// trigger name, with "solid" meaning manual control held on and the
// empty string leaving the trigger untouched.
type Controller interface {
	Set(ledType string, enabled bool, pattern string) error

	// Available lists the LED types this board exposes.
	Available() []string
}
