package jobs

import (
	"context"

	"github.com/charmbracelet/log"

	"geosafe/internal/metrics"
	"geosafe/internal/patterns"
	"geosafe/internal/reports"
)

const (
	SweepJob   = "sweep"
	PatternJob = "patterns"
)

// Sweep deletes expired reports.
func Sweep(m *reports.Manager) Func {
	return func(ctx context.Context) error {
		n, err := m.SweepExpired(ctx)
		if err != nil {
			return err
		}
		metrics.ReportsSwept.Add(float64(n))
		if n > 0 {
			log.Info("expired reports swept", "count", n)
		} else {
			log.Debug("sweep found no expired reports")
		}
		return nil
	}
}

// Patterns rebuilds the pattern set.
func Patterns(d *patterns.Detector) Func {
	return func(ctx context.Context) error {
		_, err := d.Run(ctx)
		return err
	}
}
