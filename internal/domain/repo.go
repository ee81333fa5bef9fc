package domain

import (
	"context"
)

type SnapshotRepository interface {
	Upsert(ctx context.Context, shopDomain, customerID string, items []Item) (*SavedCartSnapshot, error)
	Find(ctx context.Context, shopDomain, customerID string) (*SavedCartSnapshot, error)
	Ping(ctx context.Context) error
}
