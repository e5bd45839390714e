//go:build linux

package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
	"github.com/Adrian-Rod-Mol/arducam-apps/pkg/linuxav/v4l2"
)

// v4l2Camera drives the quad-band sensor through memory-mapped V4L2
// streaming. The device node stays open for the life of the process;
// format and exposure are reapplied between capture spans.
type v4l2Camera struct {
	dev        *v4l2.Device
	preset     presets.Preset
	configured bool
	logger     *slog.Logger
}

func openV4L2(devicePath string) (Camera, error) {
	dev, err := v4l2.Open(devicePath)
	if err != nil {
		return nil, err
	}
	return &v4l2Camera{
		dev:    dev,
		logger: logging.GetLogger("camera"),
	}, nil
}

func (c *v4l2Camera) Configure(p presets.Preset) error {
	if err := c.dev.SetFormat(uint32(p.RawWidth), uint32(p.RawHeight), v4l2.PixFmtY16); err != nil {
		return err
	}
	if err := c.dev.SetFramerate(uint32(p.Framerate)); err != nil {
		return err
	}

	c.preset = p
	c.configured = true
	c.logger.Info("Sensor configured",
		"device", c.dev.Path(),
		"preset", p.Name,
		"raw", fmt.Sprintf("%dx%d", p.RawWidth, p.RawHeight),
		"framerate", p.Framerate)
	return nil
}

func (c *v4l2Camera) SetExposure(us int64) error {
	return c.dev.SetExposure(us)
}

func (c *v4l2Camera) StartStreaming() error {
	if !c.configured {
		return fmt.Errorf("camera %s has no configured preset", c.dev.Path())
	}
	return c.dev.StartStreaming(DefaultBufferCount)
}

func (c *v4l2Camera) StopStreaming() error {
	return c.dev.StopStreaming()
}

func (c *v4l2Camera) WaitFrame(timeout time.Duration, dst []byte) (Frame, error) {
	raw, err := c.dev.WaitFrame(timeout)
	if err != nil {
		if errors.Is(err, v4l2.ErrTimeout) {
			return Frame{}, ErrTimeout
		}
		return Frame{}, err
	}

	if raw.Corrupt || len(raw.Data) != len(dst) {
		bytes := len(raw.Data)
		if requeueErr := c.dev.Requeue(raw); requeueErr != nil {
			return Frame{}, requeueErr
		}
		c.logger.Warn("Skipping corrupt frame",
			"device", c.dev.Path(),
			"sequence", raw.Sequence,
			"bytes", bytes,
			"expected", len(dst))
		return Frame{}, ErrCorruptFrame
	}

	copy(dst, raw.Data)
	frame := Frame{
		SequenceID:  raw.Sequence,
		TimestampUS: raw.TimestampUS,
	}
	if frame.TimestampUS == 0 {
		frame.TimestampUS = time.Now().UnixMicro()
	}

	if err := c.dev.Requeue(raw); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

func (c *v4l2Camera) Close() error {
	return c.dev.Close()
}
