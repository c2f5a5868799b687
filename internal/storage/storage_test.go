package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/ultrathink/internal/sessionid"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()

	file, err := NewFileStore(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	mem, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	lite, err := OpenSQLite(filepath.Join(dir, "db", "sessions.db"))
	require.NoError(t, err)

	all := map[string]Backend{BackendFile: file, BackendBadger: mem, BackendSQLite: lite}
	t.Cleanup(func() {
		for _, b := range all {
			b.Close()
		}
	})
	return all
}

func TestBackends_Contract(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Read(ctx, "s1")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Write(ctx, "s1", []byte(`{"v":1}`)))
			require.NoError(t, b.Write(ctx, "s1", []byte(`{"v":2}`)))
			require.NoError(t, b.Write(ctx, "a-0", []byte(`{}`)))

			data, err := b.Read(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, `{"v":2}`, string(data))

			ids, err := b.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a-0", "s1"}, ids)

			require.NoError(t, b.Delete(ctx, "s1"))
			require.ErrorIs(t, b.Delete(ctx, "s1"), ErrNotFound)
			_, err = b.Read(ctx, "s1")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBackends_RejectInvalidIDs(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "../escape", "a b", "x:y"} {
				require.ErrorIs(t, b.Write(ctx, id, []byte("{}")), sessionid.ErrInvalid, id)
				_, err := b.Read(ctx, id)
				require.ErrorIs(t, err, sessionid.ErrInvalid, id)
				require.ErrorIs(t, b.Delete(ctx, id), sessionid.ErrInvalid, id)
			}
		})
	}
}

func TestBackends_EmptyListIsNotNil(t *testing.T) {
	for name, b := range backends(t) {
		ids, err := b.List(context.Background())
		require.NoError(t, err, name)
		assert.NotNil(t, ids, name)
		assert.Empty(t, ids, name)
	}
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), "abc", []byte("{}")))

	assert.FileExists(t, filepath.Join(dir, "abc.json"))
	assert.Equal(t, filepath.Join(dir, "abc.json"), s.Path("abc"))

	// Leftovers and foreign files are not sessions.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad name.json"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	ids, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, ids)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 5, "no temp file left behind by Write")
}

func TestBadgerStore_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "keep", []byte("data")))
	require.NoError(t, s.Close())

	s, err = OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	data, err := s.Read(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestOpenSQLite_OpenFailure(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) {
		return nil, errors.New("boom")
	}

	_, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	b, err := Open(Config{Path: filepath.Join(dir, "files")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, b)

	b, err = Open(Config{Backend: BackendSQLite, Path: DefaultPath(BackendSQLite, dir)})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, b)
	require.NoError(t, b.Close())

	_, err = Open(Config{Backend: "redis", Path: dir})
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "/s", DefaultPath(BackendFile, "/s"))
	assert.Equal(t, filepath.Join("/s", "badger"), DefaultPath(BackendBadger, "/s"))
	assert.Equal(t, filepath.Join("/s", "sessions.db"), DefaultPath(BackendSQLite, "/s"))
}

func TestOpenBadger_SecondOpenerIsLockedOut(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	first, err := Open(Config{Backend: BackendBadger, Path: dir})
	require.NoError(t, err)

	_, err = Open(Config{Backend: BackendBadger, Path: dir})
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "another ultrathink process")

	require.NoError(t, first.Close())
	again, err := Open(Config{Backend: BackendBadger, Path: dir})
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestSQLiteStore_ContendedWriteFailsFast(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Write(ctx, "s1", []byte(`{"v":1}`)))

	// Another process mid-write.
	other, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer other.Close()
	conn, err := other.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)

	start := time.Now()
	err = s.Write(ctx, "s2", []byte(`{"v":2}`))
	require.ErrorIs(t, err, ErrLocked)
	assert.Less(t, time.Since(start), time.Second, "write must not wait for the other writer")

	data, err := s.Read(ctx, "s1")
	require.NoError(t, err, "reads are not blocked by a writer")
	assert.Equal(t, `{"v":1}`, string(data))

	_, err = conn.ExecContext(ctx, "ROLLBACK")
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "s2", []byte(`{"v":2}`)))
}
