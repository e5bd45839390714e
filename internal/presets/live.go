package presets

import "sync/atomic"

// Source resolves preset names at capture time. *Table is a fixed source;
// *Live follows the presets file across reloads.
type Source interface {
	Get(name string) (Preset, bool)
	Has(name string) bool
}

// Live is an atomically swappable preset table. A reload goroutine
// publishes whole tables; readers always see a complete, validated set.
// Running spans keep the preset they started with — a swap only affects
// later lookups.
type Live struct {
	table atomic.Pointer[Table]
}

// NewLive wraps an initial table.
func NewLive(t *Table) *Live {
	l := &Live{}
	l.table.Store(t)
	return l
}

// Swap publishes a new table.
func (l *Live) Swap(t *Table) {
	l.table.Store(t)
}

// Table returns the current table.
func (l *Live) Table() *Table {
	return l.table.Load()
}

// Get looks up a preset in the current table.
func (l *Live) Get(name string) (Preset, bool) {
	return l.table.Load().Get(name)
}

// Has reports whether name exists in the current table.
func (l *Live) Has(name string) bool {
	return l.table.Load().Has(name)
}

// All returns the current table's presets sorted by name.
func (l *Live) All() []Preset {
	return l.table.Load().All()
}
