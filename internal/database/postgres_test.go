package database

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/domain"
	"github.com/TemirB/save-cart-for-later/internal/migrate"
)

func testRepo(t *testing.T) (*Repo, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrate.Apply(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE saved_carts`)
	require.NoError(t, err)

	return New(pool), pool
}

func countRows(t *testing.T, pool *pgxpool.Pool, shop, customer string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT count(*) FROM saved_carts WHERE shop_domain=$1 AND customer_id=$2`, shop, customer,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestRepo_UpsertAndFind(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	items := []domain.Item{{VariantID: "gid://v/1", Quantity: 2}}
	saved, err := repo.Upsert(ctx, "s1.myshopify.com", "c1", items)
	require.NoError(t, err)
	require.Equal(t, items, saved.Items)
	require.Equal(t, int64(1), saved.Version)
	require.NotEmpty(t, saved.ID)

	found, err := repo.Find(ctx, "s1.myshopify.com", "c1")
	require.NoError(t, err)
	require.Equal(t, saved.ID, found.ID)
	require.Equal(t, items, found.Items)
}

func TestRepo_UpsertReplacesItems(t *testing.T) {
	repo, pool := testRepo(t)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, "s1.myshopify.com", "c1", []domain.Item{{VariantID: "a", Quantity: 1}})
	require.NoError(t, err)

	second, err := repo.Upsert(ctx, "s1.myshopify.com", "c1", []domain.Item{
		{VariantID: "b", Quantity: 3, Properties: map[string]string{"note": "gift"}},
	})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(2), second.Version)
	require.False(t, second.UpdatedAt.Before(first.UpdatedAt))
	require.Equal(t, 1, countRows(t, pool, "s1.myshopify.com", "c1"))

	found, err := repo.Find(ctx, "s1.myshopify.com", "c1")
	require.NoError(t, err)
	require.Equal(t, []domain.Item{{VariantID: "b", Quantity: 3, Properties: map[string]string{"note": "gift"}}}, found.Items)
}

func TestRepo_UpsertEmptyClears(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "s1.myshopify.com", "c1", []domain.Item{{VariantID: "a", Quantity: 1}})
	require.NoError(t, err)

	cleared, err := repo.Upsert(ctx, "s1.myshopify.com", "c1", nil)
	require.NoError(t, err)
	require.Empty(t, cleared.Items)
	require.NotNil(t, cleared.Items)
}

func TestRepo_FindUnknown(t *testing.T) {
	repo, _ := testRepo(t)

	_, err := repo.Find(context.Background(), "nobody.myshopify.com", "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NotErrorIs(t, err, domain.ErrStorage)
}

func TestRepo_ConcurrentUpsertsKeepOneRow(t *testing.T) {
	repo, pool := testRepo(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Upsert(ctx, "race.myshopify.com", "c1", []domain.Item{{VariantID: "v", Quantity: i + 1}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, countRows(t, pool, "race.myshopify.com", "c1"))
	found, err := repo.Find(ctx, "race.myshopify.com", "c1")
	require.NoError(t, err)
	require.Equal(t, int64(writers), found.Version)
	require.Len(t, found.Items, 1)
}

func TestRepo_CanceledContextIsStorageError(t *testing.T) {
	repo, _ := testRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Upsert(ctx, "s1.myshopify.com", "c1", []domain.Item{{VariantID: "a", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrStorage)
}

func TestRepo_Recent(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	for _, c := range []string{"c1", "c2", "c3"} {
		_, err := repo.Upsert(ctx, "s1.myshopify.com", c, []domain.Item{{VariantID: "v", Quantity: 1}})
		require.NoError(t, err)
	}

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}
