package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"

	"BollWatch/internal/metrics"
	"BollWatch/internal/model"
)

// Notifier delivers a finished run report to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, r *model.RunReport) error
}

// Multi fans a report out to every notifier. One failing channel does not
// stop the others.
type Multi struct {
	Notifiers []Notifier
	Metrics   *metrics.Metrics
}

// NewMulti drops nil notifiers.
func NewMulti(m *metrics.Metrics, ns ...Notifier) *Multi {
	multi := &Multi{Metrics: m}
	for _, n := range ns {
		if n != nil {
			multi.Notifiers = append(multi.Notifiers, n)
		}
	}
	return multi
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Notify(ctx context.Context, r *model.RunReport) error {
	var errs []error
	for _, n := range m.Notifiers {
		if err := n.Notify(ctx, r); err != nil {
			log.Printf("[ERROR] %s notify run %s: %v", n.Name(), r.RunID, err)
			m.Metrics.NotifyFailed(n.Name())
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		log.Printf("[INFO] %s delivered run %s", n.Name(), r.RunID)
	}
	return errors.Join(errs...)
}
