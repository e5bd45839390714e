// Package collectors feeds host-level readings into the metrics registry.
package collectors

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/metrics"
)

// ThermalCollector polls the kernel thermal zones and publishes SoC
// temperatures. On the Pi the interesting zone is cpu-thermal.
type ThermalCollector struct {
	logger   logging.Logger
	sysPath  string
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewThermalCollector creates a collector over /sys/class/thermal.
func NewThermalCollector() *ThermalCollector {
	return &ThermalCollector{
		logger:   logging.GetLogger("thermal"),
		sysPath:  "/sys/class/thermal",
		interval: 10 * time.Second,
	}
}

// Start begins periodic collection.
func (t *ThermalCollector) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)
	go t.run()
	return nil
}

// Stop stops the collector.
func (t *ThermalCollector) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

func (t *ThermalCollector) run() {
	t.logger.Info("Starting thermal collection", "path", t.sysPath, "interval", t.interval)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.collect()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.collect()
		}
	}
}

func (t *ThermalCollector) collect() {
	zones, err := t.readZones()
	if err != nil {
		t.logger.Warn("Failed to read thermal zones", "error", err)
		return
	}

	for _, zone := range zones {
		metrics.SetSoCTemperature(zone.Name, zone.Celsius)
	}
}

type thermalZone struct {
	Name    string
	Celsius float64
}

func (t *ThermalCollector) readZones() ([]thermalZone, error) {
	dirs, err := filepath.Glob(filepath.Join(t.sysPath, "thermal_zone*"))
	if err != nil {
		return nil, err
	}

	var zones []thermalZone
	for _, dir := range dirs {
		zone, err := t.readZone(dir)
		if err != nil {
			continue
		}
		zones = append(zones, *zone)
	}

	return zones, nil
}

func (t *ThermalCollector) readZone(dir string) (*thermalZone, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "temp"))
	if err != nil {
		return nil, err
	}

	// The kernel reports millidegrees Celsius.
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(dir)
	if typ, err := os.ReadFile(filepath.Join(dir, "type")); err == nil {
		if s := strings.TrimSpace(string(typ)); s != "" {
			name = s
		}
	}

	return &thermalZone{Name: name, Celsius: milli / 1000}, nil
}
