package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Aman-CERP/fsindex/internal/config"
	"github.com/Aman-CERP/fsindex/internal/registry"
	"github.com/Aman-CERP/fsindex/internal/roots"
	"github.com/Aman-CERP/fsindex/internal/term"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Storage.Dir = filepath.Join(t.TempDir(), "storage")
	cfg.Indexing.Parallelism = 4
	cfg.Indexing.MaxFileSize = 1024
	cfg.Cleanup.Interval = "1h"
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func write(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func searchPaths(t *testing.T, e *Engine, tm term.Term) []string {
	t.Helper()
	got, err := e.Search(context.Background(), tm)
	require.NoError(t, err)
	return got
}

func TestEngine_RegisterSearchUnregisterRoundTrip(t *testing.T) {
	// Given: a registered file
	e := newTestEngine(t, testConfig(t))
	path := write(t, filepath.Join(t.TempDir(), "notes.txt"), "Remember the milk. Buy milk today.")
	ctx := context.Background()
	require.Equal(t, registry.FileRegistrationSuccessful, e.Register(ctx, path).Code)

	// Then: its words and sentences are searchable
	assert.Equal(t, []string{path}, searchPaths(t, e, term.Word("milk")))
	assert.Equal(t, []string{path}, searchPaths(t, e, term.Sentence("Remember the milk.")))

	// When: unregistering it
	require.Equal(t, registry.FileUnregistrationSuccessful, e.Unregister(ctx, path).Code)

	// Then: it no longer appears
	assert.Empty(t, searchPaths(t, e, term.Word("milk")))

	// When: registering it again
	require.Equal(t, registry.FileRegistrationSuccessful, e.Register(ctx, path).Code)

	// Then: it is found again
	assert.Equal(t, []string{path}, searchPaths(t, e, term.Word("milk")))
}

func TestEngine_TwoFileDirectory(t *testing.T) {
	// Given: a directory with two files sharing one word
	e := newTestEngine(t, testConfig(t))
	dir := t.TempDir()
	first := write(t, filepath.Join(dir, "first.txt"), "The devils came in august. The devils left.")
	second := write(t, filepath.Join(dir, "second.txt"), "No devils here.")

	// When: registering the directory
	require.Equal(t, registry.DirectoryRegistrationSuccessful, e.Register(context.Background(), dir).Code)

	// Then: the shared word ranks the file with more occurrences first
	assert.Equal(t, []string{first, second}, searchPaths(t, e, term.Word("devils")))
	assert.Equal(t, []string{first}, searchPaths(t, e, term.Word("august")))
	assert.Equal(t, []string{second}, searchPaths(t, e, term.Sentence("No devils here.")))
	assert.Empty(t, searchPaths(t, e, term.Word("angels")))
}

func TestEngine_ModificationIsPickedUp(t *testing.T) {
	// Given: a registered file containing "one two"
	e := newTestEngine(t, testConfig(t))
	path := write(t, filepath.Join(t.TempDir(), "m.txt"), "one two")
	require.Equal(t, registry.FileRegistrationSuccessful, e.Register(context.Background(), path).Code)

	// When: the file changes on disk
	write(t, path, "two three")

	// Then: the index follows
	require.Eventually(t, func() bool {
		return len(searchPaths(t, e, term.Word("three"))) == 1 && len(searchPaths(t, e, term.Word("one"))) == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{path}, searchPaths(t, e, term.Word("two")))
}

func TestEngine_NewFileInRegisteredDirectory(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.txt"), "alpha")
	require.Equal(t, registry.DirectoryRegistrationSuccessful, e.Register(context.Background(), dir).Code)

	created := write(t, filepath.Join(dir, "b.txt"), "bravo")

	require.Eventually(t, func() bool {
		got := searchPaths(t, e, term.Word("bravo"))
		return len(got) == 1 && got[0] == created
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEngine_DeletedFileIsPurged(t *testing.T) {
	// Given: a registered directory with one file
	e := newTestEngine(t, testConfig(t))
	dir := t.TempDir()
	path := write(t, filepath.Join(dir, "gone.txt"), "ephemeral")
	require.Equal(t, registry.DirectoryRegistrationSuccessful, e.Register(context.Background(), dir).Code)

	// When: the file is deleted
	require.NoError(t, os.Remove(path))

	// Then: searches drop it at once and its terms are purged eventually
	assert.Empty(t, searchPaths(t, e, term.Word("ephemeral")))
	require.Eventually(t, func() bool {
		for _, st := range e.Status().Indices {
			if st.Terms != 0 {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEngine_CancelThenRegisterAgain(t *testing.T) {
	// Given: a cancellation requested for a directory
	e := newTestEngine(t, testConfig(t))
	dir := t.TempDir()
	path := write(t, filepath.Join(dir, "a.txt"), "cancel me")
	assert.Equal(t, roots.IndexingCancellationSuccessful, e.CancelIndexing(dir))
	assert.Equal(t, roots.IndexingAlreadyCancelled, e.CancelIndexing(dir))

	// When: registering it
	res := e.Register(context.Background(), dir)

	// Then: the registration is cancelled and nothing is searchable
	assert.Equal(t, registry.DirectoryRegistrationCancelled, res.Code)
	assert.Empty(t, searchPaths(t, e, term.Word("cancel")))
	assert.Empty(t, e.Status().Roots)

	// When: registering it again
	require.Equal(t, registry.DirectoryRegistrationSuccessful, e.Register(context.Background(), dir).Code)

	// Then: it is indexed cleanly
	assert.Equal(t, []string{path}, searchPaths(t, e, term.Word("cancel")))
	assert.Zero(t, e.Status().PendingRemoval)
}

func TestEngine_RegisterSurvivesConcurrentSweeps(t *testing.T) {
	// Given: a directory whose files are still queued from a cancelled walk
	cfg := testConfig(t)
	cfg.Search.MaxResults = 1000
	e := newTestEngine(t, cfg)
	dir := t.TempDir()
	const files = 200
	for i := range files {
		path := write(t, filepath.Join(dir, fmt.Sprintf("f%03d.txt", i)), "uniqueword")
		e.removal.Add(e.ids.ToID(path))
	}

	// When: sweeps run back to back while the directory is registered
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				e.Sweep()
			}
		}
	}()
	res := e.Register(context.Background(), dir)
	close(stop)
	<-done

	// Then: every file stays indexed
	require.Equal(t, registry.DirectoryRegistrationSuccessful, res.Code)
	assert.Len(t, searchPaths(t, e, term.Word("uniqueword")), files)
	assert.Zero(t, e.removal.Len())
}

func TestEngine_SizeLimit(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	path := write(t, filepath.Join(t.TempDir(), "big.txt"), strings.Repeat("word ", 300))

	res := e.Register(context.Background(), path)

	assert.Equal(t, registry.FileSizeExceedsLimits, res.Code)
	assert.Empty(t, searchPaths(t, e, term.Word("word")))
}

func TestEngine_SweepPurgesPendingIDs(t *testing.T) {
	// Given: an indexed file whose id is queued for removal
	e := newTestEngine(t, testConfig(t))
	dir := t.TempDir()
	path := write(t, filepath.Join(dir, "a.txt"), "purge target")
	require.Equal(t, registry.DirectoryRegistrationSuccessful, e.Register(context.Background(), dir).Code)
	id := e.ids.ToID(path)
	e.removal.Add(id)
	assert.Empty(t, searchPaths(t, e, term.Word("purge")))

	// When: sweeping
	removed := e.Sweep()

	// Then: the index entries and cached content are gone
	assert.Equal(t, 1, removed)
	assert.Zero(t, e.removal.Len())
	for _, idx := range e.indices {
		assert.Empty(t, idx.FindByDocID(id), idx.Name())
	}
	assert.Zero(t, e.Status().Storage.Memory)
	assert.Zero(t, e.Sweep())
}

func TestEngine_SweepRunsOnInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cleanup.Interval = "20ms"
	e := newTestEngine(t, cfg)
	path := write(t, filepath.Join(t.TempDir(), "a.txt"), "ticking")
	require.Equal(t, registry.FileRegistrationSuccessful, e.Register(context.Background(), path).Code)

	e.removal.Add(e.ids.ToID(path))

	require.Eventually(t, func() bool { return e.removal.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestEngine_ResetState(t *testing.T) {
	// Given: a registered directory and an unregistered subtree
	e := newTestEngine(t, testConfig(t))
	dir := t.TempDir()
	write(t, filepath.Join(dir, "sub", "a.txt"), "reset me")
	ctx := context.Background()
	require.Equal(t, registry.DirectoryRegistrationSuccessful, e.Register(ctx, dir).Code)
	require.Equal(t, registry.DirectoryUnregistrationSuccessful, e.Unregister(ctx, filepath.Join(dir, "sub")).Code)

	// When: resetting
	e.ResetState()

	// Then: everything is forgotten
	st := e.Status()
	assert.Empty(t, st.Roots)
	assert.Empty(t, st.FilteredOut)
	assert.Empty(t, st.Registrations)
	assert.Zero(t, st.WatchedDirs)
	for _, ist := range st.Indices {
		assert.Zero(t, ist.Terms, ist.Name)
	}
	assert.Empty(t, searchPaths(t, e, term.Word("reset")))

	// And: the directory can be registered from scratch
	assert.Equal(t, registry.DirectoryRegistrationSuccessful, e.Register(ctx, dir).Code)
	assert.Len(t, searchPaths(t, e, term.Word("reset")), 1)
}

func TestEngine_StatusIsJSON(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	path := write(t, filepath.Join(t.TempDir(), "a.txt"), "status check")
	require.Equal(t, registry.FileRegistrationSuccessful, e.Register(context.Background(), path).Code)
	searchPaths(t, e, term.Word("status"))

	data, err := json.Marshal(e.Status())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "roots")
	assert.Contains(t, decoded, "indices")
	assert.EqualValues(t, 1, decoded["queries"].(map[string]any)["total"])
}

func TestEngine_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.MaxResults = 0

	_, err := New(cfg, nil)

	require.Error(t, err)
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, statErr := os.Stat(cfg.Storage.Dir)
	assert.True(t, os.IsNotExist(statErr))
}
