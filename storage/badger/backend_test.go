package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "missing directories are created")
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

	backend, err := OpenBackend(tmpFile, false)
	assert.Error(t, err)
	assert.Nil(t, backend)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)

	assert.False(t, backend.IsClosed())

	err = backend.Close()
	require.NoError(t, err)

	assert.True(t, backend.IsClosed())
}

func TestWithTransaction(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	t.Run("successful transaction", func(t *testing.T) {
		err := backend.WithTransaction(ctx, func(ctx context.Context) error {
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("failed transaction", func(t *testing.T) {
		testErr := assert.AnError
		err := backend.WithTransaction(ctx, func(ctx context.Context) error {
			return testErr
		})
		assert.Equal(t, testErr, err)
	})
}

func TestGetSequence(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	seq, err := backend.GetSequence("test_sequence")
	require.NoError(t, err)
	require.NotNil(t, seq)
	defer seq.Release()

	id1, err := nextID(seq)
	require.NoError(t, err)
	assert.NotZero(t, id1, "zero is never handed out")

	id2, err := nextID(seq)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)
}

func TestInBatches(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	items := make([]core.ID, writeBatchSize*2+7)
	for i := range items {
		items[i] = core.ID(i + 1)
	}

	var transactions int
	var last *badger.Txn
	err = inBatches(backend, items, func(tx *badger.Txn, id core.ID) error {
		if tx != last {
			transactions++
			last = tx
		}
		return tx.Set(makeDocumentKey(id), []byte{1})
	})
	require.NoError(t, err)
	assert.Equal(t, 3, transactions)

	keys, err := backend.scanKeys([]byte(documentPrefix))
	require.NoError(t, err)
	assert.Len(t, keys, len(items))
	assert.Equal(t, core.ID(1), lastID(keys[0]), "keys iterate in numeric order")
	assert.Equal(t, core.ID(len(items)), lastID(keys[len(keys)-1]))
}

func TestCompositeKey(t *testing.T) {
	key := compositeKey(documentSourcePrefix, 1, 2, 3)

	assert.Len(t, key, len(documentSourcePrefix)+24)
	assert.Equal(t, core.ID(3), lastID(key))
	assert.Equal(t, compositeKey(documentSourcePrefix, 1, 2), key[:len(documentSourcePrefix)+16])
}
