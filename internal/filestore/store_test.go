package filestore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/asknotes/internal/config"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

func TestLocalStoreLifecycle(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Key("bio", "cells.txt"), []byte("mitochondria")))
	require.NoError(t, store.Save(ctx, Key("chem", "acids.pdf"), []byte("%PDF")))
	require.NoError(t, store.Save(ctx, Key("bio", "cells.txt"), []byte("mitochondria v2")))

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bio/cells.txt", "chem/acids.pdf"}, keys)

	rc, err := store.Open(ctx, "bio/cells.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "mitochondria v2", string(data))

	_, err = store.Open(ctx, "bio/missing.txt")
	require.True(t, appErr.IsNotFound(err))

	require.NoError(t, store.Purge(ctx))
	keys, err = store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestKeyValidation(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	for _, key := range []string{"../etc/passwd", "bio/../x", "bio", "bio/a/b", "/x", "bio/.."} {
		err := store.Save(context.Background(), key, []byte("x"))
		require.ErrorIs(t, err, appErr.ErrInvalid, key)
	}
	subject, file, err := SplitKey("bio/cells.txt")
	require.NoError(t, err)
	require.Equal(t, "bio", subject)
	require.Equal(t, "cells.txt", file)
}

func TestDisabledStore(t *testing.T) {
	store, err := New(config.FileStoreConfig{})
	require.NoError(t, err)
	require.Nil(t, store)
	_, err = New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
}
