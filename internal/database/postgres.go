package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TemirB/save-cart-for-later/internal/domain"
)

var _ domain.SnapshotRepository = (*Repo)(nil)

type Repo struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// The conflict target is the primary key, so concurrent saves for one key are
// serialized by the row lock and version increases in commit order.
const upsertSnapshot = `
	INSERT INTO saved_carts (id, shop_domain, customer_id, items, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, 1, now(), now())
	ON CONFLICT (shop_domain, customer_id) DO UPDATE SET
	  items=EXCLUDED.items,
	  version=saved_carts.version + 1,
	  updated_at=now()
	RETURNING id::text, shop_domain, customer_id, items, version, updated_at
`

const findSnapshot = `
	SELECT id::text, shop_domain, customer_id, items, version, updated_at
	FROM saved_carts WHERE shop_domain=$1 AND customer_id=$2
`

func (r *Repo) Upsert(ctx context.Context, shopDomain, customerID string, items []domain.Item) (*domain.SavedCartSnapshot, error) {
	if items == nil {
		items = []domain.Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("%w: encode items: %w", domain.ErrStorage, err)
	}

	s, err := scanSnapshot(r.pool.QueryRow(ctx, upsertSnapshot,
		uuid.New(), shopDomain, customerID, payload,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: upsert saved cart: %w", domain.ErrStorage, err)
	}
	return s, nil
}

func (r *Repo) Find(ctx context.Context, shopDomain, customerID string) (*domain.SavedCartSnapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx, findSnapshot, shopDomain, customerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find saved cart: %w", domain.ErrStorage, err)
	}
	return s, nil
}

func (r *Repo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (*domain.SavedCartSnapshot, error) {
	var (
		s   domain.SavedCartSnapshot
		raw []byte
	)
	if err := row.Scan(&s.ID, &s.ShopDomain, &s.CustomerID, &raw, &s.Version, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if s.Items == nil {
		s.Items = []domain.Item{}
	}
	return &s, nil
}

const recentSnapshots = `
	SELECT id::text, shop_domain, customer_id, items, version, updated_at
	FROM saved_carts
	ORDER BY updated_at DESC
	LIMIT $1
`

// Recent returns the most recently saved snapshots, newest first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]*domain.SavedCartSnapshot, error) {
	rows, err := r.pool.Query(ctx, recentSnapshots, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent saved carts: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []*domain.SavedCartSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan saved cart: %w", domain.ErrStorage, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return out, nil
}
