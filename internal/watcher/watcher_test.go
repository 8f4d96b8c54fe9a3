package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Aman-CERP/fsindex/internal/fileid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type suffixValidator string

func (s suffixValidator) IsValid(path string) bool { return strings.HasSuffix(path, string(s)) }

func newTestWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 4
	}
	w, err := New(cfg, fileid.NewRegistry(), suffixValidator(".txt"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func mkfile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// recorder collects index calls.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) index(_ context.Context, _ fileid.FileID, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitEvent(t *testing.T, w *Watcher, match func(ChangeEvent) bool) ChangeEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "events channel closed")
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timeout waiting for event")
			return ChangeEvent{}
		}
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := New(Config{}, fileid.NewRegistry(), suffixValidator(".txt"), nil)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, ok := <-w.Events()
	assert.False(t, ok, "events channel is closed")
}

func TestAttachToRootAndIndex_WalksValidFiles(t *testing.T) {
	// Given: a tree with valid, invalid and excluded files
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "a.txt"), "a")
	mkfile(t, filepath.Join(root, "b.bin"), "b")
	mkfile(t, filepath.Join(root, "sub", "c.txt"), "c")
	mkfile(t, filepath.Join(root, "node_modules", "d.txt"), "d")
	w := newTestWatcher(t, Config{ExcludePatterns: []string{"**/node_modules/**"}})
	rec := &recorder{}

	// When: attaching
	walk, err := w.AttachToRootAndIndex(context.Background(), root, rec.index)

	// Then: only valid, non-excluded files were indexed and directories watched
	require.NoError(t, err)
	assert.False(t, walk.Cancelled)
	assert.Len(t, walk.AddedIDs, 2)
	assert.ElementsMatch(t, []string{filepath.Join(root, "a.txt"), filepath.Join(root, "sub", "c.txt")}, rec.seen())
	assert.Equal(t, 2, walk.Dirs)
	assert.True(t, w.IsWatched(root))
	assert.True(t, w.IsWatched(filepath.Join(root, "sub")))
	assert.False(t, w.IsWatched(filepath.Join(root, "node_modules")))
}

func TestAttachToRootAndIndex_MaxDepth(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "top.txt"), "x")
	mkfile(t, filepath.Join(root, "l1", "one.txt"), "x")
	mkfile(t, filepath.Join(root, "l1", "l2", "two.txt"), "x")

	tests := []struct {
		name     string
		maxDepth int
		want     int
	}{
		{"root files only", 1, 1},
		{"one level down", 2, 2},
		{"unbounded", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWatcher(t, Config{MaxDepth: tt.maxDepth})
			rec := &recorder{}

			walk, err := w.AttachToRootAndIndex(context.Background(), root, rec.index)

			require.NoError(t, err)
			assert.Len(t, walk.AddedIDs, tt.want)
		})
	}
}

func TestAttachToRootAndIndex_Cancelled(t *testing.T) {
	// Given: an already cancelled token
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		mkfile(t, filepath.Join(root, "d", string(rune('a'+i))+".txt"), "x")
	}
	w := newTestWatcher(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}

	// When: walking
	walk, err := w.AttachToRootAndIndex(ctx, root, rec.index)

	// Then: nothing was indexed and the walk reports cancellation
	require.NoError(t, err)
	assert.True(t, walk.Cancelled)
	assert.Empty(t, walk.AddedIDs)
	assert.Empty(t, rec.seen())
}

func TestAttachToRootAndIndex_CancelMidWalkDrainsStartedWork(t *testing.T) {
	// Given: a walk that cancels itself from inside the first index run
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		mkfile(t, filepath.Join(root, string(rune('a'+i))+".txt"), "x")
	}
	w := newTestWatcher(t, Config{Parallelism: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished atomic.Int32
	index := func(runCtx context.Context, _ fileid.FileID, _ string) error {
		cancel()
		time.Sleep(5 * time.Millisecond)
		assert.NoError(t, runCtx.Err(), "in-flight runs are not interrupted")
		finished.Add(1)
		return nil
	}

	// When: walking
	walk, err := w.AttachToRootAndIndex(ctx, root, index)

	// Then: every scheduled run finished before return and the rest were skipped
	require.NoError(t, err)
	assert.True(t, walk.Cancelled)
	assert.Equal(t, int(finished.Load()), len(walk.AddedIDs))
	assert.Less(t, len(walk.AddedIDs), 20)
}

func TestAttachToRootAndIndex_FailuresAreIsolated(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "ok.txt"), "x")
	mkfile(t, filepath.Join(root, "bad.txt"), "x")
	w := newTestWatcher(t, Config{})

	walk, err := w.AttachToRootAndIndex(context.Background(), root, func(_ context.Context, _ fileid.FileID, path string) error {
		if strings.HasSuffix(path, "bad.txt") {
			return assert.AnError
		}
		return nil
	})

	require.NoError(t, err)
	assert.Len(t, walk.AddedIDs, 2)
	assert.Equal(t, 1, walk.Failed)
}

func TestAttachToRootAndIndex_MissingRoot(t *testing.T) {
	w := newTestWatcher(t, Config{})

	_, err := w.AttachToRootAndIndex(context.Background(), filepath.Join(t.TempDir(), "nope"), (&recorder{}).index)

	assert.Error(t, err)
}

func TestWatcher_PublishesChanges(t *testing.T) {
	// Given: a watched directory
	root := t.TempDir()
	w := newTestWatcher(t, Config{})
	_, err := w.AttachToRootAndIndex(context.Background(), root, (&recorder{}).index)
	require.NoError(t, err)
	path := filepath.Join(root, "new.txt")

	// When: a file is created, written and removed
	mkfile(t, path, "hello")
	created := waitEvent(t, w, func(ev ChangeEvent) bool { return ev.Path == path && ev.Op == OpCreate })
	require.NoError(t, os.WriteFile(path, []byte("hello again"), 0o644))
	waitEvent(t, w, func(ev ChangeEvent) bool { return ev.Path == path && ev.Op == OpModify })
	require.NoError(t, os.Remove(path))
	deleted := waitEvent(t, w, func(ev ChangeEvent) bool { return ev.Path == path && ev.Op == OpDelete })

	// Then: each change was published for the file
	assert.False(t, created.IsDir)
	assert.False(t, deleted.IsDir)
}

func TestWatcher_DirectoryDeleteIsDir(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	w := newTestWatcher(t, Config{})
	_, err := w.AttachToRootAndIndex(context.Background(), root, (&recorder{}).index)
	require.NoError(t, err)

	require.NoError(t, os.Remove(sub))

	ev := waitEvent(t, w, func(ev ChangeEvent) bool { return ev.Path == sub && ev.Op == OpDelete })
	assert.True(t, ev.IsDir)
	assert.False(t, w.IsWatched(sub))
}

func TestWatcher_PartialWatchFiltersSiblings(t *testing.T) {
	// Given: a partial watch for one file in a directory
	dir := t.TempDir()
	tracked := filepath.Join(dir, "tracked.txt")
	sibling := filepath.Join(dir, "sibling.txt")
	mkfile(t, tracked, "x")
	w := newTestWatcher(t, Config{})
	require.NoError(t, w.AttachToFile(tracked))
	assert.True(t, w.IsPartial(dir))

	// When: both the sibling and the tracked file change
	mkfile(t, sibling, "y")
	require.NoError(t, os.WriteFile(tracked, []byte("changed"), 0o644))

	// Then: only the tracked file is reported
	ev := waitEvent(t, w, func(ev ChangeEvent) bool { return ev.Op == OpModify || ev.Op == OpCreate })
	assert.Equal(t, tracked, ev.Path)
}

func TestWatcher_CompleteWalkClearsPartialWatch(t *testing.T) {
	dir := t.TempDir()
	tracked := filepath.Join(dir, "tracked.txt")
	mkfile(t, tracked, "x")
	w := newTestWatcher(t, Config{})
	require.NoError(t, w.AttachToFile(tracked))

	_, err := w.AttachToRootAndIndex(context.Background(), dir, (&recorder{}).index)

	require.NoError(t, err)
	assert.False(t, w.IsPartial(dir))
}

func TestWatcher_DetachAndReset(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	other := t.TempDir()
	w := newTestWatcher(t, Config{})
	_, err := w.AttachToRootAndIndex(context.Background(), root, (&recorder{}).index)
	require.NoError(t, err)
	_, err = w.AttachToRootAndIndex(context.Background(), other, (&recorder{}).index)
	require.NoError(t, err)
	require.Equal(t, 4, w.WatchedCount())

	w.Detach(root)
	assert.Equal(t, 1, w.WatchedCount())
	assert.True(t, w.IsWatched(other))

	w.Reset()
	assert.Zero(t, w.WatchedCount())
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(0).String())
}
