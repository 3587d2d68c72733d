package store

import (
	"context"
	"errors"

	"BollWatch/internal/model"
)

// ErrNotFound is returned by Get before any report has been stored.
var ErrNotFound = errors.New("no report stored")

// Store holds the most recent RunReport. Put replaces it atomically: a
// concurrent Get sees either the previous report or the new one.
type Store interface {
	Put(ctx context.Context, r *model.RunReport) error
	Get(ctx context.Context) (*model.RunReport, error)
}
