package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/storage"
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
	tmpDir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
	info, err := os.Stat(tmpDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

	backend, err := OpenBackend(tmpFile, false)
	require.Error(t, err)
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

	// Closing twice is harmless
	require.NoError(t, backend.Close())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	boom := errors.New("boom")
	err = backend.WithTransaction(context.Background(), func(ctx context.Context, tx *badger.Txn) error {
		if err := tx.Set([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte("k"))
		return err
	}, false)
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestWithTransaction_Commits(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WithTransaction(context.Background(), func(ctx context.Context, tx *badger.Txn) error {
		return tx.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	err = backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte("k"))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		assert.Equal(t, []byte("v"), val)
		return err
	}, false)
	assert.NoError(t, err)
}

func TestWithTransaction_TooBig(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	value := bytes.Repeat([]byte("v"), 64<<10)
	err = backend.WithTransaction(context.Background(), func(ctx context.Context, tx *badger.Txn) error {
		for i := range 1 << 12 {
			if err := tx.Set(fmt.Appendf(nil, "k%d", i), value); err != nil {
				return err
			}
		}
		return nil
	})
	require.ErrorIs(t, err, storage.ErrBatchTooLarge)
	assert.ErrorIs(t, err, badger.ErrTxnTooBig)
}

func TestGetSequence(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	seq, err := backend.GetSequence("test_sequence")
	require.NoError(t, err)
	defer seq.Release()

	first, err := seq.Next()
	require.NoError(t, err)
	second, err := seq.Next()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}
