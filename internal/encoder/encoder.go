// Package encoder runs the parallel de-interleave pipeline: a fixed pool
// of workers pulls raw capture items from a shared ingress queue,
// transforms them, and a single emitter restores strict capture order
// before handing frames to the output callbacks.
package encoder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/band"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/metrics"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// pollInterval bounds every queue wait so a stop request is observed even
// if a wake signal is lost.
const pollInterval = 200 * time.Millisecond

// DefaultWorkers is the pool size used when Options.Workers is zero.
const DefaultWorkers = 4

// OutputFn receives each frame in strict capture order. The buffer is
// owned by the pipeline and only valid for the duration of the call.
type OutputFn func(buf []byte, timestampUS int64, keyframe bool)

// ReleaseFn receives the raw input buffer once its frame has been
// emitted; callers may recycle it.
type ReleaseFn func(raw []byte)

// Metadata describes an emitted frame.
type Metadata struct {
	Index       uint64
	Bytes       int
	TimestampUS int64
}

// MetadataFn receives per-frame metadata after the frame is emitted.
type MetadataFn func(md Metadata)

// Options configures the pipeline.
type Options struct {
	Preset  presets.Preset
	Workers int

	OnOutputReady   OutputFn
	OnInputReleased ReleaseFn
	OnMetadataReady MetadataFn
}

// rawItem is one captured buffer queued for transformation, tagged with
// the sequence index assigned at ingress.
type rawItem struct {
	buf         []byte
	timestampUS int64
	index       uint64
}

// transformedItem is one de-interleaved frame waiting for in-order
// emission. A nil buf marks a failed transform; the placeholder keeps the
// index chain unbroken so the emitter can advance past it.
type transformedItem struct {
	buf         []byte
	raw         []byte
	timestampUS int64
	index       uint64
}

// Encoder owns the worker pool and the reorder/emit stage.
type Encoder struct {
	opts   Options
	logger *slog.Logger

	inMu      sync.Mutex
	ingress   []rawItem
	nextIndex uint64

	outMu    sync.Mutex
	outputs  [][]transformedItem
	expected uint64

	ingressWake chan struct{}
	emitWake    chan struct{}
	stopWorkers chan struct{}
	stopEmitter chan struct{}

	workerWG sync.WaitGroup
	emitWG   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	// beforeTransform, when set, runs in the worker right before the
	// de-interleave. Tests use it to inject per-worker jitter.
	beforeTransform func(worker int, index uint64)
}

// New builds a pipeline for the given preset. Start must be called before
// frames are submitted.
func New(opts Options) (*Encoder, error) {
	if opts.OnOutputReady == nil {
		return nil, fmt.Errorf("encoder: OnOutputReady callback is required")
	}
	if err := opts.Preset.Validate(); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Encoder{
		opts:        opts,
		logger:      logging.GetLogger("encoder"),
		outputs:     make([][]transformedItem, opts.Workers),
		ingressWake: make(chan struct{}, opts.Workers),
		emitWake:    make(chan struct{}, 1),
		stopWorkers: make(chan struct{}),
		stopEmitter: make(chan struct{}),
	}, nil
}

// Start launches the worker pool and the emitter.
func (e *Encoder) Start() {
	e.startOnce.Do(func() {
		for i := 0; i < e.opts.Workers; i++ {
			e.workerWG.Add(1)
			go e.worker(i)
		}
		e.emitWG.Add(1)
		go e.emitter()
		e.logger.Info("Pipeline started",
			"workers", e.opts.Workers,
			"preset", e.opts.Preset.Name,
			"raw_bytes", e.opts.Preset.RawBytes(),
			"frame_bytes", e.opts.Preset.FrameBytes())
	})
}

// Stop shuts the pipeline down in two phases: workers first so the
// ingress queue drains into the output queues, then the emitter once the
// workers are joined so every transformed frame is delivered. K submitted
// frames always produce K emissions before Stop returns.
func (e *Encoder) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopWorkers)
		e.workerWG.Wait()
		close(e.stopEmitter)
		e.emitWG.Wait()
		e.logger.Info("Pipeline stopped", "frames", e.expected)
	})
}

// Submit assigns the next sequence index to buf and queues it for
// transformation. Ownership of buf transfers to the pipeline. Submit
// never blocks; a buffer whose size does not match the preset layout is
// rejected with band.ErrInvalidBufferSize before it enters the queue.
func (e *Encoder) Submit(buf []byte, timestampUS int64) error {
	if err := band.ValidateSize(buf, e.opts.Preset); err != nil {
		return err
	}

	e.inMu.Lock()
	item := rawItem{buf: buf, timestampUS: timestampUS, index: e.nextIndex}
	e.nextIndex++
	e.ingress = append(e.ingress, item)
	metrics.SetIngressDepth(len(e.ingress))
	e.inMu.Unlock()

	select {
	case e.ingressWake <- struct{}{}:
	default:
	}
	return nil
}

// Emitted returns how many sequence indices have been retired in capture
// order so far.
func (e *Encoder) Emitted() uint64 {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	return e.expected
}

func (e *Encoder) worker(id int) {
	defer e.workerWG.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		item, ok, stopped := e.popIngress()
		if ok {
			e.transform(id, item)
			continue
		}
		if stopped {
			return
		}
		select {
		case <-e.ingressWake:
		case <-e.stopWorkers:
		case <-ticker.C:
		}
	}
}

// popIngress pops the oldest raw item. The stopped result is true only
// when stop was requested and the queue is empty, checked under the same
// lock so no trailing item is missed.
func (e *Encoder) popIngress() (rawItem, bool, bool) {
	e.inMu.Lock()
	defer e.inMu.Unlock()

	if len(e.ingress) > 0 {
		item := e.ingress[0]
		e.ingress[0] = rawItem{}
		e.ingress = e.ingress[1:]
		metrics.SetIngressDepth(len(e.ingress))
		return item, true, false
	}

	select {
	case <-e.stopWorkers:
		return rawItem{}, false, true
	default:
		return rawItem{}, false, false
	}
}

func (e *Encoder) transform(worker int, item rawItem) {
	if e.beforeTransform != nil {
		e.beforeTransform(worker, item.index)
	}

	start := time.Now()
	out, err := band.Deinterleave(item.buf, e.opts.Preset)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Error("Transform failed", "worker", worker, "index", item.index, "error", err)
	} else {
		metrics.ObserveTransform(elapsed.Seconds())
		e.logger.Debug("Frame transformed",
			"worker", worker,
			"index", item.index,
			"elapsed_us", elapsed.Microseconds())
	}

	e.outMu.Lock()
	e.outputs[worker] = append(e.outputs[worker], transformedItem{
		buf:         out,
		raw:         item.buf,
		timestampUS: item.timestampUS,
		index:       item.index,
	})
	metrics.SetOutputDepth(worker, len(e.outputs[worker]))
	e.outMu.Unlock()

	select {
	case e.emitWake <- struct{}{}:
	default:
	}
}

func (e *Encoder) emitter() {
	defer e.emitWG.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		item, ok, stopped := e.popExpected()
		if ok {
			e.emit(item)
			continue
		}
		if stopped {
			return
		}
		select {
		case <-e.emitWake:
		case <-e.stopEmitter:
		case <-ticker.C:
		}
	}
}

// popExpected scans every worker queue for the next expected index. The
// stage only reports stopped when stop was requested and every queue is
// empty; items still in flight always drain first. A present-but-higher
// index with no stop request means a worker is still transforming the
// expected frame, so the emitter waits.
func (e *Encoder) popExpected() (transformedItem, bool, bool) {
	e.outMu.Lock()
	defer e.outMu.Unlock()

	pending := false
	for w := range e.outputs {
		q := e.outputs[w]
		if len(q) == 0 {
			continue
		}
		pending = true
		if q[0].index == e.expected {
			item := q[0]
			q[0] = transformedItem{}
			e.outputs[w] = q[1:]
			metrics.SetOutputDepth(w, len(e.outputs[w]))
			e.expected++
			return item, true, false
		}
	}
	if pending {
		return transformedItem{}, false, false
	}

	select {
	case <-e.stopEmitter:
		return transformedItem{}, false, true
	default:
		return transformedItem{}, false, false
	}
}

func (e *Encoder) emit(item transformedItem) {
	if e.opts.OnInputReleased != nil {
		e.opts.OnInputReleased(item.raw)
	}
	if item.buf == nil {
		metrics.IncFrameDropped()
		return
	}

	e.opts.OnOutputReady(item.buf, item.timestampUS, true)
	if e.opts.OnMetadataReady != nil {
		e.opts.OnMetadataReady(Metadata{
			Index:       item.index,
			Bytes:       len(item.buf),
			TimestampUS: item.timestampUS,
		})
	}
	metrics.IncFrameEmitted(len(item.buf))
}
