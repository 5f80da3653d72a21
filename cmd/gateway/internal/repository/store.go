package repository

import (
	"context"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

// SnapshotStore keeps the last successfully fetched snapshot per symbol.
type SnapshotStore interface {
	SaveSnapshots(ctx context.Context, snapshots []models.PriceSnapshot) error
	// GetSnapshots returns stored snapshots for symbols, in request order,
	// skipping symbols that have never been saved.
	GetSnapshots(ctx context.Context, symbols []string) ([]models.PriceSnapshot, error)
	Close() error
}

// SymbolRegistry lists the symbols the broadcaster should fetch. It is read
// once per tick; the owner of the list may change it at any time.
type SymbolRegistry interface {
	Symbols(ctx context.Context) ([]string, error)
}

// TickPublisher receives every tick batch after it is fetched.
type TickPublisher interface {
	PublishTick(ctx context.Context, snapshots []models.PriceSnapshot) error
	Close() error
}
