package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropName(t *testing.T) {
	tests := []struct {
		doc, label, want string
	}{
		{"abc", "Signature_1", "abc_Signature_1.jpg"},
		{"abc", "Sig/../etc", "abc_Sig_etc.jpg"},
		{"abc", "I/We Hereby", "abc_I_We_Hereby.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CropName(tt.doc, tt.label))
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("3f6c_Signature_1.jpg"))

	for _, name := range []string{"", "../secret", "a/b.jpg", ".hidden", "a..b", `a\b`, "a b"} {
		assert.False(t, ValidName(name), name)
	}
}

func TestLocalStore_PutOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(filepath.Join(dir, "static"), "/static/")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "doc_Signature_1.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/static/doc_Signature_1.jpg", url)

	rc, err := s.Open(context.Background(), "doc_Signature_1.jpg")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLocalStore_Overwrite(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/static")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "a.jpg", []byte("one"), "image/jpeg")
	require.NoError(t, err)
	_, err = s.Put(ctx, "a.jpg", []byte("two"), "image/jpeg")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.Dir(), "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/static")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../escape.jpg", []byte("x"), "image/jpeg")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Open(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLocalStore_OpenMissing(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/static")
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "nope.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_Cleanup(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/static")
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"old.jpg", "new.jpg"} {
		_, err := s.Put(ctx, name, []byte(name), "image/jpeg")
		require.NoError(t, err)
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), "old.jpg"), past, past))

	removed, err := s.Cleanup(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Open(ctx, "old.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	rc, err := s.Open(ctx, "new.jpg")
	require.NoError(t, err)
	rc.Close()
}

func TestLocalStore_CleanupSkipsForeignFiles(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/static")
	require.NoError(t, err)
	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{"old.jpg", "index.html", "logo.png", ".keep"} {
		path := filepath.Join(s.Dir(), name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		require.NoError(t, os.Chtimes(path, past, past))
	}

	removed, err := s.Cleanup(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	for _, name := range []string{"index.html", "logo.png", ".keep"} {
		assert.FileExists(t, filepath.Join(s.Dir(), name))
	}
	assert.NoFileExists(t, filepath.Join(s.Dir(), "old.jpg"))
}

type countingStore struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
}

func (c *countingStore) Put(context.Context, string, []byte, string) (string, error) { return "", nil }
func (c *countingStore) Open(context.Context, string) (io.ReadCloser, error)      { return nil, ErrNotFound }

func (c *countingStore) Cleanup(_ context.Context, cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.cutoffs = append(c.cutoffs, cutoff)
	return 1, nil
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRunJanitor_Sweeps(t *testing.T) {
	s := &countingStore{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, s, time.Hour, 10*time.Millisecond, zerolog.Nop())
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(-time.Hour), s.cutoffs[0], time.Minute)
}

func TestRunJanitor_Disabled(t *testing.T) {
	s := &countingStore{}

	RunJanitor(context.Background(), s, 0, time.Second, zerolog.Nop())
	assert.Equal(t, 0, s.count())
}
