//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"
	"unsafe"
)

// ErrTimeout is returned by WaitFrame when no frame arrives within the
// deadline. The sensor or CSI link has usually stalled and the caller
// restarts streaming to recover.
var ErrTimeout = errors.New("timed out waiting for frame")

// Buffer flag set by the driver when a frame was captured with errors.
const v4l2BufFlagError = 0x00000040

// Frame is one dequeued capture buffer. Data aliases kernel memory and
// is only valid until Requeue; callers must copy it first.
type Frame struct {
	Data        []byte
	Sequence    uint32
	TimestampUS int64
	Corrupt     bool
	index       uint32
}

// Device is an open V4L2 capture device with memory-mapped streaming I/O.
// Methods are not safe for concurrent use; one goroutine owns the device.
type Device struct {
	fd        int
	path      string
	buffers   [][]byte
	streaming bool
	logger    *slog.Logger
}

// Open opens a capture device and verifies it supports streaming I/O.
func Open(path string) (*Device, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	cap := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&cap)); err != nil {
		close(fd)
		return nil, fmt.Errorf("failed to query capabilities of %s: %w", path, err)
	}

	caps := cap.capabilities
	if caps&v4l2CapDeviceCaps != 0 {
		caps = cap.deviceCaps
	}
	if caps&v4l2CapVideoCapture == 0 {
		close(fd)
		return nil, fmt.Errorf("%s is not a video capture device", path)
	}
	if caps&v4l2CapStreaming == 0 {
		close(fd)
		return nil, fmt.Errorf("%s does not support streaming I/O", path)
	}

	return &Device{
		fd:     fd,
		path:   path,
		logger: slog.With("component", "linuxav"),
	}, nil
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// SetFormat negotiates the capture format. Sensor modes are discrete, so
// a driver adjustment away from the requested geometry is an error.
func (d *Device) SetFormat(width, height, pixelFormat uint32) error {
	format := v4l2Format{typ: v4l2BufTypeVideoCapture}
	format.pix.width = width
	format.pix.height = height
	format.pix.pixelformat = pixelFormat
	format.pix.field = v4l2FieldNone

	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&format)); err != nil {
		return fmt.Errorf("failed to set format on %s: %w", d.path, err)
	}

	if format.pix.width != width || format.pix.height != height {
		return fmt.Errorf("%s adjusted format to %dx%d, requested %dx%d",
			d.path, format.pix.width, format.pix.height, width, height)
	}
	if format.pix.pixelformat != pixelFormat {
		return fmt.Errorf("%s adjusted pixel format to %s, requested %s",
			d.path, FormatFourCC(format.pix.pixelformat), FormatFourCC(pixelFormat))
	}

	return nil
}

// SetFramerate requests a capture rate in frames per second. Drivers
// without timeperframe support are left at their native rate.
func (d *Device) SetFramerate(fps uint32) error {
	if fps == 0 {
		return fmt.Errorf("framerate must be positive")
	}

	parm := v4l2Streamparm{typ: v4l2BufTypeVideoCapture}
	parm.capture.timeperframe = v4l2Fract{numerator: 1, denominator: fps}

	if err := ioctl(d.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		if errors.Is(err, syscall.ENOTTY) {
			d.logger.Debug("device does not support framerate control", "path", d.path)
			return nil
		}
		return fmt.Errorf("failed to set framerate on %s: %w", d.path, err)
	}

	return nil
}

// SetExposure sets the sensor exposure time in microseconds.
func (d *Device) SetExposure(us int64) error {
	ctrl := v4l2Control{id: v4l2CidExposure, value: int32(us)}
	if err := ioctl(d.fd, vidiocSCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return fmt.Errorf("failed to set exposure on %s: %w", d.path, err)
	}
	return nil
}

// StartStreaming allocates count kernel buffers, maps them into the
// process, queues them all, and turns the stream on.
func (d *Device) StartStreaming(count int) error {
	if d.streaming {
		return fmt.Errorf("%s is already streaming", d.path)
	}
	if count <= 0 {
		return fmt.Errorf("buffer count must be positive")
	}

	req := v4l2RequestBuffers{
		count:  uint32(count),
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("failed to request buffers on %s: %w", d.path, err)
	}
	if req.count == 0 {
		return fmt.Errorf("%s granted no capture buffers", d.path)
	}

	d.buffers = make([][]byte, req.count)
	for i := uint32(0); i < req.count; i++ {
		buf := v4l2Buffer{
			index:  i,
			typ:    v4l2BufTypeVideoCapture,
			memory: v4l2MemoryMmap,
		}
		if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			d.releaseBuffers()
			return fmt.Errorf("failed to query buffer %d on %s: %w", i, d.path, err)
		}

		mapped, err := mapBuffer(d.fd, buf.mmapOffset(), buf.length)
		if err != nil {
			d.releaseBuffers()
			return fmt.Errorf("failed to map buffer %d on %s: %w", i, d.path, err)
		}
		d.buffers[i] = mapped

		if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
			d.releaseBuffers()
			return fmt.Errorf("failed to queue buffer %d on %s: %w", i, d.path, err)
		}
	}

	typ := int32(v4l2BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		d.releaseBuffers()
		return fmt.Errorf("failed to start streaming on %s: %w", d.path, err)
	}

	d.streaming = true
	d.logger.Debug("streaming started", "path", d.path, "buffers", req.count)
	return nil
}

// StopStreaming turns the stream off and releases all kernel buffers.
// Frames still held by the caller become invalid.
func (d *Device) StopStreaming() error {
	if !d.streaming {
		return nil
	}
	d.streaming = false

	typ := int32(v4l2BufTypeVideoCapture)
	err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ))
	d.releaseBuffers()
	if err != nil {
		return fmt.Errorf("failed to stop streaming on %s: %w", d.path, err)
	}

	d.logger.Debug("streaming stopped", "path", d.path)
	return nil
}

// WaitFrame blocks until a frame is ready or the timeout elapses.
// The returned frame must be requeued after its data has been copied.
func (d *Device) WaitFrame(timeout time.Duration) (*Frame, error) {
	if !d.streaming {
		return nil, fmt.Errorf("%s is not streaming", d.path)
	}

	for {
		var readFds syscall.FdSet
		fdSet(d.fd, &readFds)

		n, err := syscall.Select(d.fd+1, &readFds, nil, nil, makeTimeval(int(timeout.Milliseconds())))
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return nil, fmt.Errorf("select on %s failed: %w", d.path, err)
		}
		if n == 0 {
			return nil, ErrTimeout
		}
		break
	}

	buf := v4l2Buffer{
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to dequeue buffer on %s: %w", d.path, err)
	}
	if int(buf.index) >= len(d.buffers) {
		return nil, fmt.Errorf("dequeued unknown buffer index %d on %s", buf.index, d.path)
	}

	return &Frame{
		Data:        d.buffers[buf.index][:buf.bytesused],
		Sequence:    buf.sequence,
		TimestampUS: buf.timestampUS(),
		Corrupt:     buf.flags&v4l2BufFlagError != 0,
		index:       buf.index,
	}, nil
}

// Requeue hands a dequeued frame's buffer back to the driver.
func (d *Device) Requeue(f *Frame) error {
	if !d.streaming {
		return nil
	}

	buf := v4l2Buffer{
		index:  f.index,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("failed to requeue buffer %d on %s: %w", f.index, d.path, err)
	}

	f.Data = nil
	return nil
}

// Close stops streaming if needed and closes the device node.
func (d *Device) Close() error {
	if d.streaming {
		if err := d.StopStreaming(); err != nil {
			d.logger.Warn("failed to stop streaming on close", "path", d.path, "error", err)
		}
	}
	return close(d.fd)
}

// releaseBuffers unmaps all buffers and frees the kernel allocation.
func (d *Device) releaseBuffers() {
	for i, b := range d.buffers {
		if b == nil {
			continue
		}
		if err := unmapBuffer(b); err != nil {
			d.logger.Warn("failed to unmap buffer", "path", d.path, "index", i, "error", err)
		}
	}
	d.buffers = nil

	req := v4l2RequestBuffers{
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMmap,
	}
	_ = ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req))
}
