// Package hostmetrics wraps gopsutil host resource queries behind the
// narrow interfaces the rest of the tree depends on: the Council's local
// validator needs free RAM and CPU temperature; the reference watcher (see
// watchers/hostmetrics) needs full CPU/memory/disk snapshots to publish as
// telemetry.
package hostmetrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Monitor reads live host resource state. Satisfies
// internal/council/local.ResourceMonitor.
type Monitor struct{}

// New constructs a Monitor.
func New() *Monitor { return &Monitor{} }

// FreeRAMMB returns available system memory in megabytes.
func (m *Monitor) FreeRAMMB(ctx context.Context) (int, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("hostmetrics: read memory: %w", err)
	}
	return int(v.Available / (1024 * 1024)), nil
}

// CPUTempCelsius returns the average reported CPU temperature across
// sensors. Not every platform exposes sensor data; callers should treat an
// error as "unknown" (advisory-only per §4.7, so this never blocks).
func (m *Monitor) CPUTempCelsius(ctx context.Context) (float64, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("hostmetrics: read sensors: %w", err)
	}
	if len(temps) == 0 {
		return 0, fmt.Errorf("hostmetrics: no temperature sensors reported")
	}
	var sum float64
	for _, t := range temps {
		sum += t.Temperature
	}
	return sum / float64(len(temps)), nil
}

// Snapshot is one poll's worth of CPU, memory, and disk usage.
type Snapshot struct {
	CPUPercent   float64
	CPUCount     int
	MemTotal     uint64
	MemAvailable uint64
	MemUsed      uint64
	MemPercent   float64
	DiskTotal    uint64
	DiskUsed     uint64
	DiskFree     uint64
	DiskPercent  float64
}

// Poll gathers one Snapshot of CPU, memory, and disk usage for the root
// filesystem.
func (m *Monitor) Poll(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return snap, fmt.Errorf("hostmetrics: read cpu: %w", err)
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return snap, fmt.Errorf("hostmetrics: count cpu: %w", err)
	}
	snap.CPUCount = counts

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("hostmetrics: read memory: %w", err)
	}
	snap.MemTotal = vm.Total
	snap.MemAvailable = vm.Available
	snap.MemUsed = vm.Used
	snap.MemPercent = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return snap, fmt.Errorf("hostmetrics: read disk: %w", err)
	}
	snap.DiskTotal = du.Total
	snap.DiskUsed = du.Used
	snap.DiskFree = du.Free
	snap.DiskPercent = du.UsedPercent

	return snap, nil
}
