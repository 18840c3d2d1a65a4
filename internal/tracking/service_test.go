package tracking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal unbounded HistoryStore/DedupIndex used to exercise
// the facade without depending on a backend package.
type fakeStore struct {
	latest  *Reading
	history []Reading
	seen    map[Fingerprint]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[Fingerprint]struct{})}
}

func (f *fakeStore) SeedIfEmpty(_ context.Context, r Reading) (bool, error) {
	if f.latest != nil || len(f.history) > 0 {
		return false, nil
	}
	f.latest = &r
	f.history = []Reading{r}
	return true, nil
}

func (f *fakeStore) Append(_ context.Context, r Reading) error {
	f.latest = &r
	f.history = append([]Reading{r}, f.history...)
	return nil
}

func (f *fakeStore) Latest(context.Context) (Reading, bool, error) {
	if f.latest == nil {
		return Reading{}, false, nil
	}
	return *f.latest, true, nil
}

func (f *fakeStore) History(_ context.Context, offset, limit int) ([]Reading, error) {
	if offset >= len(f.history) {
		return []Reading{}, nil
	}
	end := min(offset+limit, len(f.history))
	return append([]Reading(nil), f.history[offset:end]...), nil
}

func (f *fakeStore) Seen(_ context.Context, fp Fingerprint) (bool, error) {
	_, ok := f.seen[fp]
	return ok, nil
}

func (f *fakeStore) Record(_ context.Context, fp Fingerprint) error {
	f.seen[fp] = struct{}{}
	return nil
}

func TestBootstrapSeedsEmptyStore(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := NewService(st, st, 0, nil)

	require.NoError(t, svc.Bootstrap(ctx))

	latest, ok, err := svc.GetLatest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Reading{Latitude: 55.752488, Longitude: 12.524214, Timestamp: "System Start"}, latest)

	seen, err := st.Seen(ctx, FingerprintOf(BootstrapReading))
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestBootstrapLeavesPopulatedStoreAlone(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	existing := Reading{Latitude: 1, Longitude: 2, Timestamp: "old"}
	require.NoError(t, st.Append(ctx, existing))

	svc := NewService(st, st, 0, nil)
	require.NoError(t, svc.Bootstrap(ctx))

	latest, _, err := svc.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, existing, latest)
	assert.Empty(t, st.seen)
}

func TestGetLatestDedupedEmptyStore(t *testing.T) {
	svc := NewService(newFakeStore(), newFakeStore(), 0, nil)

	got, err := svc.GetLatestDeduped(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetLatestDedupedCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	a := Reading{Latitude: 1, Longitude: 1, Timestamp: "a"}
	b := Reading{Latitude: 2, Longitude: 2, Timestamp: "b"}

	// Two writers raced and both appended b.
	require.NoError(t, st.Append(ctx, a))
	require.NoError(t, st.Append(ctx, b))
	require.NoError(t, st.Append(ctx, b))

	svc := NewService(st, st, 0, nil)
	got, err := svc.GetLatestDeduped(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Reading{b, a}, got)
}

func TestGetHistoryClampsArguments(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.Append(ctx, Reading{Latitude: float64(i), Timestamp: "t"}))
	}
	svc := NewService(st, st, 3, nil)

	got, err := svc.GetHistory(ctx, -4, 100)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, float64(4), got[0].Latitude)

	got, err = svc.GetHistory(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, float64(0), got[0].Latitude)
}
