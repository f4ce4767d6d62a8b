package order

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPGRepo connects to POSTGRES_TEST_DSN and applies the schema. Rows
// written under the returned user ids are removed when the test ends.
func newPGRepo(t *testing.T) (*PGRepo, string, string) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, Migrate(ctx, pool))

	owner, other := "test-"+uuid.NewString(), "test-"+uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM orders WHERE user_id = ANY($1)`, []string{owner, other})
	})
	return NewPGRepo(pool), owner, other
}

func pgOrder(t *testing.T, userID string, at time.Time, items ...Item) *Order {
	t.Helper()
	if len(items) == 0 {
		items = []Item{{ProductID: "1", Name: "Ao", UnitPrice: dec("100000"), Quantity: 1}}
	}
	o, err := New("GM-T-"+uuid.NewString()[:8], userID, validInfo(), items, at)
	require.NoError(t, err)
	return o
}

func TestPGRepoCreateAndRead(t *testing.T) {
	repo, owner, _ := newPGRepo(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	o := pgOrder(t, owner, at,
		Item{ProductID: "3", Name: "C", UnitPrice: dec("0.005"), Quantity: 3},
		Item{ProductID: "1", Name: "A", UnitPrice: dec("100000"), Quantity: 2},
		Item{ProductID: "2", Name: "B", UnitPrice: dec("19999.99"), Quantity: 1},
	)
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.GetForUser(ctx, o.ID, owner)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.Equal(t, []string{"3", "1", "2"}, []string{got.Items[0].ProductID, got.Items[1].ProductID, got.Items[2].ProductID})
	assert.True(t, got.Items[0].UnitPrice.Equal(dec("0.01")))
	assert.True(t, got.Total.Equal(o.Total), got.Total.String())
	assert.True(t, got.CreatedAt.Equal(at))
	assert.Equal(t, StatusPendingConfirmation, got.Status)

	err = repo.Create(ctx, o)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPGRepoListOrderingAndScope(t *testing.T) {
	repo, owner, other := newPGRepo(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	older := pgOrder(t, owner, at)
	a := pgOrder(t, owner, at.Add(time.Minute))
	b := pgOrder(t, owner, at.Add(time.Minute))
	foreign := pgOrder(t, other, at.Add(time.Hour))
	for _, o := range []*Order{older, a, b, foreign} {
		require.NoError(t, repo.Create(ctx, o))
	}

	mine, err := repo.List(ctx, ListFilter{UserID: owner})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	first, second := a.ID, b.ID
	if b.ID > a.ID {
		first, second = b.ID, a.ID
	}
	assert.Equal(t, []string{first, second, older.ID}, []string{mine[0].ID, mine[1].ID, mine[2].ID})
	for _, o := range mine {
		assert.Len(t, o.Items, 1)
	}

	_, err = repo.GetForUser(ctx, foreign.ID, owner)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Update(ctx, foreign.ID, owner, func(o *Order) (bool, error) { return true, o.Cancel(at) })
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.Get(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingConfirmation, got.Status)
}

func TestPGRepoUnchangedUpdateWritesNothing(t *testing.T) {
	repo, owner, _ := newPGRepo(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	o := pgOrder(t, owner, at)
	require.NoError(t, repo.Create(ctx, o))
	_, err := repo.Update(ctx, o.ID, "", func(o *Order) (bool, error) { return true, o.Confirm(at.Add(time.Minute)) })
	require.NoError(t, err)
	delivered, err := repo.Update(ctx, o.ID, owner, func(o *Order) (bool, error) { return o.MarkReceived(at.Add(2 * time.Minute)) })
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)

	again, err := repo.Update(ctx, o.ID, owner, func(o *Order) (bool, error) { return o.MarkReceived(at.Add(time.Hour)) })
	require.NoError(t, err)
	assert.True(t, again.UpdatedAt.Equal(at.Add(2*time.Minute)))

	stored, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(at.Add(2*time.Minute)))
}

func TestPGRepoConcurrentUpdatesSerialize(t *testing.T) {
	repo, owner, _ := newPGRepo(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	o := pgOrder(t, owner, at)
	require.NoError(t, repo.Create(ctx, o))
	_, err := repo.Update(ctx, o.ID, "", func(o *Order) (bool, error) { return true, o.Confirm(at) })
	require.NoError(t, err)

	var (
		wg                 sync.WaitGroup
		cancelErr, recvErr error
		inside             sync.Mutex
		overlap            bool
		active             int
	)
	// hold each lock briefly so the second transaction must wait on it
	guard := func(apply func(o *Order) (bool, error)) MutateFunc {
		return func(o *Order) (bool, error) {
			inside.Lock()
			active++
			overlap = overlap || active > 1
			inside.Unlock()
			time.Sleep(50 * time.Millisecond)
			inside.Lock()
			active--
			inside.Unlock()
			return apply(o)
		}
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = repo.Update(ctx, o.ID, "", guard(func(o *Order) (bool, error) { return true, o.Cancel(at) }))
	}()
	go func() {
		defer wg.Done()
		_, recvErr = repo.Update(ctx, o.ID, owner, guard(func(o *Order) (bool, error) { return o.MarkReceived(at) }))
	}()
	wg.Wait()

	assert.False(t, overlap, "row lock must serialize both transitions")
	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	switch got.Status {
	case StatusCancelled:
		assert.NoError(t, cancelErr)
		assert.ErrorIs(t, recvErr, ErrInvalidTransition)
	case StatusDelivered:
		assert.NoError(t, recvErr)
		assert.ErrorIs(t, cancelErr, ErrInvalidTransition)
	default:
		t.Fatalf("unexpected status %s", got.Status)
	}
}
