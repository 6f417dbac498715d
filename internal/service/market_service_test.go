package service

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func jointMarket(id string) domain.JointMarket {
	m := domain.JointMarket{
		ID:       id,
		Question: "Will A and B resolve yes?",
		Slug:     "a-and-b-" + id,
		Status:   domain.MarketStatusActive,
	}
	for i, c := range domain.CellOrder {
		m.Outcomes[i] = domain.OutcomeRef{
			Cell:      c,
			OutcomeID: fmt.Sprintf("%s-out-%d", id, i),
			TokenID:   fmt.Sprintf("%s-tok-%d", id, i),
		}
	}
	return m
}

// stubFetcher serves an endless stream of distinct markets, page by page.
type stubFetcher struct {
	total    int // markets available at the venue; <0 means unlimited
	calls    int
	byID     map[string]domain.JointMarket
	fetchErr error
}

func (f *stubFetcher) GetMarkets(_ context.Context, limit, offset int) ([]domain.JointMarket, error) {
	f.calls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var page []domain.JointMarket
	for i := offset; i < offset+limit; i++ {
		if f.total >= 0 && i >= f.total {
			break
		}
		page = append(page, jointMarket(fmt.Sprintf("m%d", i)))
	}
	return page, nil
}

func (f *stubFetcher) GetMarket(_ context.Context, id string) (domain.JointMarket, error) {
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return domain.JointMarket{}, domain.ErrNotFound
}

// memMarketStore is an in-memory domain.MarketStore.
type memMarketStore struct {
	byID  map[string]domain.JointMarket
	order []string
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{byID: make(map[string]domain.JointMarket)}
}

func (s *memMarketStore) Upsert(_ context.Context, m domain.JointMarket) error {
	if _, ok := s.byID[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.byID[m.ID] = m
	return nil
}

func (s *memMarketStore) UpsertBatch(ctx context.Context, markets []domain.JointMarket) error {
	for _, m := range markets {
		if err := s.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id string) (domain.JointMarket, error) {
	if m, ok := s.byID[id]; ok {
		return m, nil
	}
	return domain.JointMarket{}, domain.ErrNotFound
}

func (s *memMarketStore) GetBySlug(_ context.Context, slug string) (domain.JointMarket, error) {
	for _, m := range s.byID {
		if m.Slug == slug {
			return m, nil
		}
	}
	return domain.JointMarket{}, domain.ErrNotFound
}

func (s *memMarketStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.JointMarket, error) {
	var out []domain.JointMarket
	for i := opts.Offset; i < len(s.order) && len(out) < opts.Limit; i++ {
		out = append(out, s.byID[s.order[i]])
	}
	return out, nil
}

func (s *memMarketStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.byID)), nil
}

// stubMarketCache records sets and invalidations; Get always misses unless
// primed.
type stubMarketCache struct {
	byID        map[string]domain.JointMarket
	sets        int
	invalidated int
}

func newStubMarketCache() *stubMarketCache {
	return &stubMarketCache{byID: make(map[string]domain.JointMarket)}
}

func (c *stubMarketCache) Set(_ context.Context, m domain.JointMarket) error {
	c.sets++
	c.byID[m.ID] = m
	return nil
}

func (c *stubMarketCache) Get(_ context.Context, id string) (domain.JointMarket, error) {
	if m, ok := c.byID[id]; ok {
		return m, nil
	}
	return domain.JointMarket{}, domain.ErrNotFound
}

func (c *stubMarketCache) GetByToken(_ context.Context, tokenID string) (domain.JointMarket, error) {
	for _, m := range c.byID {
		for _, o := range m.Outcomes {
			if o.TokenID == tokenID {
				return m, nil
			}
		}
	}
	return domain.JointMarket{}, domain.ErrNotFound
}

func (c *stubMarketCache) Invalidate(_ context.Context, id string) error {
	c.invalidated++
	delete(c.byID, id)
	return nil
}

func TestSyncCapsAtMaxTracked(t *testing.T) {
	fetcher := &stubFetcher{total: -1} // venue has more markets than we track
	store := newMemMarketStore()
	cache := newStubMarketCache()
	svc := NewMarketService(fetcher, store, cache, 150, discardLogger())

	synced, err := svc.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 150, synced)
	assert.Len(t, store.byID, 150)
	assert.Equal(t, 150, cache.invalidated)
	// 100 per page: one full page plus a truncated second page.
	assert.Equal(t, 2, fetcher.calls)
}

func TestSyncStopsOnEmptyPage(t *testing.T) {
	fetcher := &stubFetcher{total: 3}
	store := newMemMarketStore()
	svc := NewMarketService(fetcher, store, newStubMarketCache(), 200, discardLogger())

	synced, err := svc.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, synced)
	assert.Len(t, store.byID, 3)
}

func TestSyncPropagatesFetchError(t *testing.T) {
	fetcher := &stubFetcher{fetchErr: fmt.Errorf("venue unavailable")}
	svc := NewMarketService(fetcher, newMemMarketStore(), newStubMarketCache(), 10, discardLogger())

	_, err := svc.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venue unavailable")
}

func TestGetMarketCacheHit(t *testing.T) {
	cache := newStubMarketCache()
	m := jointMarket("m1")
	cache.byID[m.ID] = m

	// Store and venue are empty: a hit must not touch them.
	svc := NewMarketService(&stubFetcher{total: 0}, newMemMarketStore(), cache, 10, discardLogger())

	got, err := svc.GetMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestGetMarketFallsBackToVenue(t *testing.T) {
	m := jointMarket("m9")
	fetcher := &stubFetcher{total: 0, byID: map[string]domain.JointMarket{"m9": m}}
	store := newMemMarketStore()
	cache := newStubMarketCache()
	svc := NewMarketService(fetcher, store, cache, 10, discardLogger())

	got, err := svc.GetMarket(context.Background(), "m9")
	require.NoError(t, err)
	assert.Equal(t, "m9", got.ID)

	// Discovered market is persisted and cached for later reads.
	stored, err := store.GetByID(context.Background(), "m9")
	require.NoError(t, err)
	assert.Equal(t, m.Slug, stored.Slug)
	assert.Equal(t, 1, cache.sets)
}

func TestGetMarketUnknownEverywhere(t *testing.T) {
	svc := NewMarketService(&stubFetcher{total: 0}, newMemMarketStore(), newStubMarketCache(), 10, discardLogger())

	_, err := svc.GetMarket(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetMarketByTokenScansStore(t *testing.T) {
	store := newMemMarketStore()
	m := jointMarket("m2")
	require.NoError(t, store.Upsert(context.Background(), m))

	cache := newStubMarketCache()
	svc := NewMarketService(&stubFetcher{total: 0}, store, cache, 10, discardLogger())

	got, err := svc.GetMarketByToken(context.Background(), m.Outcomes[2].TokenID)
	require.NoError(t, err)
	assert.Equal(t, "m2", got.ID)
	// The scan result is cached so the next lookup hits the token index.
	assert.Equal(t, 1, cache.sets)

	_, err = svc.GetMarketByToken(context.Background(), "no-such-token")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
