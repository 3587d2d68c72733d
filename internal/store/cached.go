package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"BollWatch/internal/model"
)

// Cached serves reads from memory and writes through to durable stores
// (SQLite, Redis). The memory copy is updated even when a durable write fails,
// so the dashboard always shows the latest run.
type Cached struct {
	mem     *MemoryStore
	durable []Store
}

// NewCached wraps the durable stores in order of preference.
func NewCached(durable ...Store) *Cached {
	return &Cached{mem: NewMemoryStore(), durable: durable}
}

// Warm loads the newest durable report into memory. Missing reports are not an error.
func (c *Cached) Warm(ctx context.Context) error {
	for _, d := range c.durable {
		r, err := d.Get(ctx)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			log.Printf("[WARN] warm cache from %T: %v", d, err)
			continue
		}
		c.mem.Put(ctx, r)
		log.Printf("[INFO] restored latest report %s (%s)", r.RunID, r.Status)
		return nil
	}
	return nil
}

func (c *Cached) Put(ctx context.Context, r *model.RunReport) error {
	c.mem.Put(ctx, r)
	var errs []error
	for _, d := range c.durable {
		if err := d.Put(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", d, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Cached) Get(ctx context.Context) (*model.RunReport, error) {
	if r, err := c.mem.Get(ctx); err == nil {
		return r, nil
	}
	for _, d := range c.durable {
		r, err := d.Get(ctx)
		if err == nil {
			c.mem.Put(ctx, r)
			return r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			log.Printf("[WARN] read %T: %v", d, err)
		}
	}
	return nil, ErrNotFound
}
