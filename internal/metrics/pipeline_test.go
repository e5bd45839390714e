package metrics

import (
	"sync"
	"testing"
)

func TestPipelineMetricsCache(t *testing.T) {
	ResetPipelineMetrics()

	IncFrameCaptured()
	IncFrameCaptured()
	IncFrameEmitted(4374720)
	IncFrameDropped()
	IncCameraRestart()
	SetCapturing(true)
	ObserveTransform(0.004)

	m := GetPipelineMetrics()
	if m.FramesCaptured != 2 {
		t.Errorf("FramesCaptured = %d, want 2", m.FramesCaptured)
	}
	if m.FramesEmitted != 1 {
		t.Errorf("FramesEmitted = %d, want 1", m.FramesEmitted)
	}
	if m.BytesOut != 4374720 {
		t.Errorf("BytesOut = %d, want 4374720", m.BytesOut)
	}
	if m.FramesDropped != 1 {
		t.Errorf("FramesDropped = %d, want 1", m.FramesDropped)
	}
	if m.CameraRestarts != 1 {
		t.Errorf("CameraRestarts = %d, want 1", m.CameraRestarts)
	}
	if !m.Capturing {
		t.Error("Capturing = false, want true")
	}
	if m.LastTransformS != 0.004 {
		t.Errorf("LastTransformS = %v, want 0.004", m.LastTransformS)
	}

	SetCapturing(false)
	if GetPipelineMetrics().Capturing {
		t.Error("Capturing should be false after gate closes")
	}
}

func TestPipelineMetricsReset(t *testing.T) {
	IncFrameCaptured()
	ResetPipelineMetrics()

	m := GetPipelineMetrics()
	if m.FramesCaptured != 0 || m.FramesEmitted != 0 || m.BytesOut != 0 {
		t.Errorf("expected zeroed cache after reset, got %+v", m)
	}
}

func TestPipelineMetricsConcurrentUpdates(t *testing.T) {
	ResetPipelineMetrics()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				IncFrameCaptured()
				IncFrameEmitted(100)
			}
		}()
	}
	wg.Wait()

	m := GetPipelineMetrics()
	if m.FramesCaptured != 800 {
		t.Errorf("FramesCaptured = %d, want 800", m.FramesCaptured)
	}
	if m.BytesOut != 80000 {
		t.Errorf("BytesOut = %d, want 80000", m.BytesOut)
	}
}
