// Package store persists split records. One record per origin ref, ever.
// The record is the executor's crash journal: it is written before the
// first broadcast and updated after each leg, so a restart can tell a
// finished split from one parked mid-flight.
package store

import (
	"context"
	"fmt"

	"github.com/ppiankov/sanctum/internal/model"
)

// SplitStore is the durable record of splits. Get returns
// model.ErrNotFound when no record exists for the ref.
type SplitStore interface {
	Get(ctx context.Context, originRef string) (*model.SplitRecord, error)
	Put(ctx context.Context, record *model.SplitRecord) error
	ListIncomplete(ctx context.Context) ([]*model.SplitRecord, error)
	Close() error
}

// New selects a backend from configuration.
func New(cfg model.StoreConfig) (SplitStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
