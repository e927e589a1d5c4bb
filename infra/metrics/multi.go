package metrics

import (
	"errors"

	coremetrics "github.com/Klodi1379/LogiSys-Pro/core/metrics"
)

// MultiSink fans records out to several sinks, collecting all errors.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink combines the given sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordOptimization(r coremetrics.OptimizationResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordOptimization(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordTransition(r coremetrics.TransitionRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordTransition(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordTracking(r coremetrics.TrackingRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordTracking(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
