package server

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/common"
)

const (
	bytesPerMB = 1024 * 1024

	severityWarning  = "warning"
	severityCritical = "critical"
)

// MemoryStatsCollector publishes runtime memory gauges and logs when the
// allocated heap crosses the configured thresholds.
type MemoryStatsCollector struct {
	log    logrus.FieldLogger
	config MemoryMonitorConfig
	read   func(*runtime.MemStats)

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	peakAlloc uint64
}

func NewMemoryStatsCollector(log logrus.FieldLogger, config MemoryMonitorConfig) *MemoryStatsCollector {
	return &MemoryStatsCollector{
		log:    log.WithField("component", "memory_stats_collector"),
		config: config,
		read:   runtime.ReadMemStats,
	}
}

func (m *MemoryStatsCollector) Start(_ context.Context) error {
	if !m.config.Enabled {
		m.log.Debug("Memory stats collector is disabled")

		return nil
	}

	s := gocron.NewScheduler(time.Local)

	if _, err := s.Every(m.config.Interval).StartImmediately().Do(m.collect); err != nil {
		return fmt.Errorf("failed to schedule memory stats collection: %w", err)
	}

	m.mu.Lock()
	m.scheduler = s
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"interval":              m.config.Interval,
		"warning_threshold_mb":  m.config.WarningThresholdMB,
		"critical_threshold_mb": m.config.CriticalThresholdMB,
	}).Info("Starting memory stats collector")

	s.StartAsync()

	return nil
}

func (m *MemoryStatsCollector) Stop(_ context.Context) error {
	m.mu.Lock()
	s := m.scheduler
	m.scheduler = nil
	m.mu.Unlock()

	if s != nil {
		s.Stop()
	}

	return nil
}

// severity classifies an allocation against the thresholds; "" is below both.
func (m *MemoryStatsCollector) severity(allocMB uint64) string {
	switch {
	case allocMB > m.config.CriticalThresholdMB:
		return severityCritical
	case allocMB > m.config.WarningThresholdMB:
		return severityWarning
	default:
		return ""
	}
}

func (m *MemoryStatsCollector) collect() {
	var stats runtime.MemStats

	m.read(&stats)

	goroutines := runtime.NumGoroutine()

	common.MemoryUsage.WithLabelValues("alloc").Set(float64(stats.Alloc))
	common.MemoryUsage.WithLabelValues("sys").Set(float64(stats.Sys))
	common.MemoryUsage.WithLabelValues("heap_alloc").Set(float64(stats.HeapAlloc))
	common.MemoryUsage.WithLabelValues("heap_sys").Set(float64(stats.HeapSys))
	common.GoroutineCount.Set(float64(goroutines))

	m.mu.Lock()
	m.peakAlloc = max(m.peakAlloc, stats.Alloc)
	peak := m.peakAlloc
	m.mu.Unlock()

	allocMB := stats.Alloc / bytesPerMB

	fields := logrus.Fields{
		"alloc_mb":      allocMB,
		"sys_mb":        stats.Sys / bytesPerMB,
		"heap_alloc_mb": stats.HeapAlloc / bytesPerMB,
		"peak_alloc_mb": peak / bytesPerMB,
		"goroutines":    goroutines,
		"num_gc":        stats.NumGC,
	}

	switch severity := m.severity(allocMB); severity {
	case severityCritical:
		common.MemoryPressureEvents.WithLabelValues(severity).Inc()
		m.log.WithFields(fields).WithField("threshold_mb", m.config.CriticalThresholdMB).Error("Critical memory usage detected")
	case severityWarning:
		common.MemoryPressureEvents.WithLabelValues(severity).Inc()
		m.log.WithFields(fields).WithField("threshold_mb", m.config.WarningThresholdMB).Warn("High memory usage detected")
	default:
		m.log.WithFields(fields).Debug("Memory usage summary")
	}
}
