//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 API for
// device enumeration, format negotiation, and memory-mapped frame
// capture. No cgo, so the daemon cross-compiles for any Linux
// architecture the sensors sit on (arm64, arm, amd64).
//
// # Device Enumeration
//
// FindDevices discovers the capture nodes on the system; Probe dumps
// what a node can do:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    reports, _ := v4l2.Probe(dev.DevicePath)
//	}
//
// # Streaming Capture
//
// Open a device, negotiate a format, and pull frames through kernel
// buffers mapped into the process:
//
//	dev, err := v4l2.Open("/dev/video0")
//	dev.SetFormat(4064, 3040, v4l2.PixFmtY16)
//	dev.StartStreaming(4)
//	for {
//	    frame, err := dev.WaitFrame(500 * time.Millisecond)
//	    if errors.Is(err, v4l2.ErrTimeout) {
//	        // Sensor stalled; restart streaming.
//	    }
//	    // Copy frame.Data before requeueing.
//	    dev.Requeue(frame)
//	}
package v4l2
