package control

import (
	"context"
	"log/slog"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/metrics"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// Exposure bounds accepted by the node, in microseconds. Values outside
// this window are rejected before they reach the gate.
const (
	MinExposureUS = 100
	MaxExposureUS = 20000
)

// InterpreterOptions wires the state machine to its collaborators. The
// callbacks fire on the interpreter goroutine after a transition is
// accepted and must not block.
type InterpreterOptions struct {
	Gate    *Gate
	Presets presets.Source

	OnStart    func()
	OnStop     func()
	OnExposure func(us int64)
	OnPreset   func(name string)
	OnShutdown func()
}

// Interpreter drives the capture gate from decoded control messages.
// Exactly one instance runs per session; it is the sole writer of the
// gate and the sole consumer of the message queue.
type Interpreter struct {
	opts   InterpreterOptions
	logger *slog.Logger
}

// NewInterpreter builds the control state machine.
func NewInterpreter(opts InterpreterOptions) *Interpreter {
	return &Interpreter{
		opts:   opts,
		logger: logging.GetLogger("control"),
	}
}

// Run consumes decoded messages until ctx is done or the channel closes.
func (i *Interpreter) Run(ctx context.Context, messages <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			i.Handle(msg)
		}
	}
}

// Handle applies one decoded message to the gate.
func (i *Interpreter) Handle(msg Message) {
	switch msg.Key {
	case KeyStart:
		metrics.IncControlMessage(KeyStart)
		if !i.opts.Gate.StartCapture() {
			metrics.IncControlReject("start_ignored")
			i.logger.Warn("START ignored", "state", i.stateName())
			return
		}
		i.logger.Info("Capture gate opened")
		if i.opts.OnStart != nil {
			i.opts.OnStart()
		}

	case KeyStop:
		metrics.IncControlMessage(KeyStop)
		if !i.opts.Gate.StopCapture() {
			metrics.IncControlReject("stop_ignored")
			i.logger.Warn("STOP ignored", "state", i.stateName())
			return
		}
		i.logger.Info("Capture gate closed")
		if i.opts.OnStop != nil {
			i.opts.OnStop()
		}

	case KeyClose:
		metrics.IncControlMessage(KeyClose)
		if !i.opts.Gate.Shutdown() {
			i.logger.Debug("Repeated CLOSE ignored")
			return
		}
		i.logger.Info("Session shutdown requested")
		if i.opts.OnShutdown != nil {
			i.opts.OnShutdown()
		}

	case KeyExposure:
		metrics.IncControlMessage(KeyExposure)
		i.handleExposure(int64(msg.Value))

	default:
		if i.opts.Presets != nil && i.opts.Presets.Has(msg.Key) {
			metrics.IncControlMessage(msg.Key)
			i.handlePreset(msg.Key)
			return
		}
		metrics.IncControlReject("unknown_key")
		i.logger.Warn("Ignoring unknown control key", "key", msg.Key)
	}
}

func (i *Interpreter) handleExposure(us int64) {
	if us < MinExposureUS || us > MaxExposureUS {
		metrics.IncControlReject("exposure_bounds")
		i.logger.Warn("EXPOSURE out of bounds",
			"exposure_us", us,
			"min_us", MinExposureUS,
			"max_us", MaxExposureUS)
		return
	}
	if !i.opts.Gate.RequestExposure(us) {
		metrics.IncControlReject("exposure_while_capturing")
		i.logger.Warn("EXPOSURE rejected while capturing", "exposure_us", us)
		return
	}
	i.logger.Info("Exposure update accepted", "exposure_us", us)
	if i.opts.OnExposure != nil {
		i.opts.OnExposure(us)
	}
}

func (i *Interpreter) handlePreset(name string) {
	if !i.opts.Gate.RequestPreset(name) {
		metrics.IncControlReject("preset_while_capturing")
		i.logger.Warn("Preset change rejected while capturing", "preset", name)
		return
	}
	i.logger.Info("Preset selected for next start", "preset", name)
	if i.opts.OnPreset != nil {
		i.opts.OnPreset(name)
	}
}

func (i *Interpreter) stateName() string {
	st := i.opts.Gate.State()
	switch {
	case st.Shutdown:
		return "shutdown"
	case st.Capturing:
		return "capturing"
	default:
		return "idle"
	}
}
