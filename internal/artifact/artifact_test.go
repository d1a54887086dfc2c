package artifact

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/store"
	"github.com/invoply/invoply-api/internal/store/memory"
)

func newTestCache(t *testing.T) (*Cache, *memory.Store, *FSStore) {
	t.Helper()
	st := memory.New()
	blobs, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return NewCache(st, blobs, zap.NewNop()), st, blobs
}

func seedInvoice(t *testing.T, st *memory.Store) *store.Invoice {
	t.Helper()
	inv := &store.Invoice{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		Items: []store.LineItem{
			{Description: "Work", Quantity: 1, UnitPriceCents: 5000, TotalCents: 5000},
		},
		TotalCents: 5000,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.CreateInvoice(context.Background(), inv))
	return inv
}

func TestFSStoreRoundTrip(t *testing.T) {
	blobs, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ref := NewRef(uuid.New())
	require.NoError(t, blobs.Put(ref, []byte("hello")))

	data, err := blobs.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, blobs.Delete(ref))
	_, err = blobs.Get(ref)
	assert.Error(t, err)

	// Deleting again is a no-op.
	assert.NoError(t, blobs.Delete(ref))
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	blobs, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, blobs.Put("../escape.pdf", []byte("x")))
	_, err = blobs.Get("a/b.pdf")
	assert.Error(t, err)
	assert.Error(t, blobs.Delete(""))
}

func TestNewRefShape(t *testing.T) {
	id := uuid.New()
	ref := NewRef(id)
	assert.Contains(t, ref, "invoice_"+id.String()+"_")
	assert.Contains(t, ref, ".pdf")
	assert.NotEqual(t, ref, NewRef(id))
}

func TestGetOrCreateCommitsOnce(t *testing.T) {
	cache, st, _ := newTestCache(t)
	inv := seedInvoice(t, st)
	ctx := context.Background()

	var renders int32
	render := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&renders, 1)
		return []byte("doc"), nil
	}

	ref1, data, err := cache.GetOrCreate(ctx, inv.ID, render)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), data)

	ref2, _, err := cache.GetOrCreate(ctx, inv.ID, render)
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&renders))
}

func TestGetOrCreateConcurrentSingleCommit(t *testing.T) {
	cache, st, _ := newTestCache(t)
	inv := seedInvoice(t, st)
	ctx := context.Background()

	const n = 16
	start := make(chan struct{})
	refs := make([]string, n)
	datas := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			refs[i], datas[i], errs[i] = cache.GetOrCreate(ctx, inv.ID, func(ctx context.Context) ([]byte, error) {
				return []byte("doc"), nil
			})
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}

	// Every caller observed the same committed reference and bytes.
	for i := 1; i < n; i++ {
		assert.Equal(t, refs[0], refs[i])
		assert.Equal(t, datas[0], datas[i])
	}

	got, err := st.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, refs[0], got.ArtifactRef)
}

func TestGetOrCreateRenderFailureCommitsNothing(t *testing.T) {
	cache, st, _ := newTestCache(t)
	inv := seedInvoice(t, st)
	ctx := context.Background()

	_, _, err := cache.GetOrCreate(ctx, inv.ID, func(ctx context.Context) ([]byte, error) {
		return nil, assert.AnError
	})
	require.Error(t, err)

	got, err := st.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ArtifactRef)

	// A later successful call is unaffected by the earlier failure.
	ref, data, err := cache.GetOrCreate(ctx, inv.ID, func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.Equal(t, []byte("ok"), data)
}

func TestGetOrCreateRegeneratesMissingBlob(t *testing.T) {
	cache, st, blobs := newTestCache(t)
	inv := seedInvoice(t, st)
	ctx := context.Background()

	ref, _, err := cache.GetOrCreate(ctx, inv.ID, func(ctx context.Context) ([]byte, error) {
		return []byte("v1"), nil
	})
	require.NoError(t, err)
	require.NoError(t, blobs.Delete(ref))

	ref2, data, err := cache.GetOrCreate(ctx, inv.ID, func(ctx context.Context) ([]byte, error) {
		return []byte("v1"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, ref, ref2)
	assert.Equal(t, []byte("v1"), data)
}

func TestReplaceSupersedesAndPrunes(t *testing.T) {
	cache, st, blobs := newTestCache(t)
	inv := seedInvoice(t, st)
	ctx := context.Background()

	ref1, _, err := cache.GetOrCreate(ctx, inv.ID, func(ctx context.Context) ([]byte, error) {
		return []byte("v1"), nil
	})
	require.NoError(t, err)

	ref2, data, err := cache.Replace(ctx, inv.ID, func(ctx context.Context) ([]byte, error) {
		return []byte("v2"), nil
	})
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref2)
	assert.Equal(t, []byte("v2"), data)

	got, err := st.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ref2, got.ArtifactRef)

	_, err = blobs.Get(ref1)
	assert.Error(t, err, "old blob should be pruned")
}
