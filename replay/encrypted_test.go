package replay

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bethhhh/ar1-go/core/ckkswrapper"
	"github.com/Bethhhh/ar1-go/tensor"
)

var (
	heOnce sync.Once
	heCtx  *ckkswrapper.HeContext
)

// testContext shares one key set across the encrypted tests; key generation
// dominates their runtime otherwise.
func testContext(t *testing.T) *ckkswrapper.HeContext {
	t.Helper()
	heOnce.Do(func() {
		heCtx = ckkswrapper.NewHeContext()
	})
	return heCtx
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	he := testContext(t)
	store, err := NewEncryptedStore(he, 4, 1)
	require.NoError(t, err)

	label, acts := sample(7, 0.25)
	require.NoError(t, store.Add(label, acts))
	require.Equal(t, 1, store.Len())

	gotLabel, gotActs, err := store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 7, gotLabel)
	require.Equal(t, acts.Shape, gotActs.Shape)
	for i := range acts.Data {
		assert.InDelta(t, acts.Data[i], gotActs.Data[i], 1e-3)
	}

	_, _, err = store.Get(5)
	assert.Error(t, err)
}

func TestEncryptedStoreBatch(t *testing.T) {
	he := testContext(t)
	store, err := NewEncryptedStore(he, 8, 3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Add(sample(i, float64(i))))
	}

	batch, labels, err := store.Batch(2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 2}, batch.Shape)
	require.Len(t, labels, 2)
	for i, label := range labels {
		assert.InDelta(t, float64(label), batch.Data[i*8], 1e-3)
	}
}

func TestEncryptedStoreMean(t *testing.T) {
	he := testContext(t)
	store, err := NewEncryptedStore(he, 4, 1)
	require.NoError(t, err)

	require.NoError(t, store.Add(sample(0, 1.0)))
	require.NoError(t, store.Add(sample(1, 3.0)))

	kit := he.GenServerKit(nil)
	mean, err := store.Mean(kit)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2, 2}, mean.Shape)
	for _, v := range mean.Data {
		assert.InDelta(t, 2.0, v, 1e-2)
	}

	empty, err := NewEncryptedStore(he, 4, 1)
	require.NoError(t, err)
	_, err = empty.Mean(kit)
	assert.Error(t, err)
}

func TestEncryptedStoreStaysBounded(t *testing.T) {
	he := testContext(t)
	store, err := NewEncryptedStore(he, 2, 5)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, store.Add(sample(i, float64(i))))
	}
	assert.Equal(t, 2, store.Len())
}

func TestEncryptedStoreSaveLoad(t *testing.T) {
	he := testContext(t)
	store, err := NewEncryptedStore(he, 4, 9)
	require.NoError(t, err)
	require.NoError(t, store.Add(sample(3, 1.5)))

	path := filepath.Join(t.TempDir(), "store.gob")
	require.NoError(t, store.Save(path))

	loaded, err := LoadEncryptedStore(path, he, 9)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())

	label, acts, err := loaded.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 3, label)
	assert.InDelta(t, 1.5, acts.Data[0], 1e-3)
}

func TestEncryptedStoreRejectsMultiSampleBatch(t *testing.T) {
	he := testContext(t)
	store, err := NewEncryptedStore(he, 4, 1)
	require.NoError(t, err)
	assert.Error(t, store.Add(0, tensor.New(3, 2, 2, 2)))
}
