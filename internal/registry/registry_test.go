package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/locker"
	"github.com/Aman-CERP/fsindex/internal/roots"
	"github.com/Aman-CERP/fsindex/internal/validation"
	"github.com/Aman-CERP/fsindex/internal/watcher"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeIndexer records which paths were updated or cleared, and which
// updates ran while the id was still queued for removal.
type fakeIndexer struct {
	ids     *fileid.Registry
	removal *roots.RemovalSet

	mu      sync.Mutex
	updated []string
	cleared []string
	pending []string
}

func (f *fakeIndexer) Update(_ context.Context, id fileid.FileID) error {
	path, err := f.ids.ToPath(id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, path)
	if f.removal != nil && f.removal.Contains(id) {
		f.pending = append(f.pending, path)
	}
	return nil
}

func (f *fakeIndexer) Clear(_ context.Context, id fileid.FileID) error {
	path, err := f.ids.ToPath(id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, path)
	return nil
}

func (f *fakeIndexer) updates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.updated...)
	sort.Strings(out)
	return out
}

func (f *fakeIndexer) clears() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

func (f *fakeIndexer) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = nil
	f.cleared = nil
}

type fixture struct {
	reg        *Registry
	indexer    *fakeIndexer
	ids        *fileid.Registry
	registered *roots.Registered
	filtered   *roots.FilteredOut
	canceller  *roots.Canceller
	removal    *roots.RemovalSet
	watcher    *watcher.Watcher
	dir        string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ids := fileid.NewRegistry()
	validator := validation.New(64, []string{"txt"})
	w, err := watcher.New(watcher.Config{Parallelism: 4}, ids, validator, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	registered := roots.NewRegistered()
	removal := roots.NewRemovalSet()
	f := &fixture{
		indexer:    &fakeIndexer{ids: ids, removal: removal},
		ids:        ids,
		registered: registered,
		filtered:   roots.NewFilteredOut(registered),
		canceller:  roots.NewCanceller(ids),
		removal:    removal,
		watcher:    w,
		dir:        t.TempDir(),
	}
	f.reg = New(Deps{
		IDs:        ids,
		Locks:      locker.New(),
		Validator:  validator,
		Watcher:    w,
		Indexer:    f.indexer,
		Registered: registered,
		Filtered:   f.filtered,
		Canceller:  f.canceller,
		Removal:    f.removal,
	})
	return f
}

func (f *fixture) file(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegister_File(t *testing.T) {
	// Given: a valid text file
	f := newFixture(t)
	path := f.file(t, "a.txt", "hello")

	// When: registering it twice
	first := f.reg.Register(context.Background(), path)
	second := f.reg.Register(context.Background(), path)

	// Then: the first registers and indexes, the second is a no-op
	assert.Equal(t, FileRegistrationSuccessful, first.Code)
	assert.Equal(t, "Successfully registered file: "+path, first.Message())
	assert.True(t, first.Succeeded())
	assert.Equal(t, FileAlreadyRegistered, second.Code)
	assert.Equal(t, []string{path}, f.indexer.updates())
	assert.True(t, f.registered.IsRegisteredAsRoot(path))
	assert.True(t, f.watcher.IsPartial(f.dir))

	st, ok := f.reg.State(path)
	require.True(t, ok)
	assert.Equal(t, State{IsMonitoredCompletely: true}, st)
	st, ok = f.reg.State(f.dir)
	require.True(t, ok)
	assert.Equal(t, State{IsDirectory: true}, st)
}

func TestRegister_ValidationFailures(t *testing.T) {
	f := newFixture(t)
	big := f.file(t, "big.txt", strings.Repeat("x", 65))
	bin := f.file(t, "data.bin", "bytes")
	missing := filepath.Join(f.dir, "missing.txt")

	tests := []struct {
		name    string
		path    string
		code    Code
		message string
	}{
		{"missing", missing, FileNotFound, "File " + missing + " was not found"},
		{"too large", big, FileSizeExceedsLimits, "File " + big + " exceeds the maximum indexed size"},
		{"unsupported", bin, FileFormatUnsupported, "File " + bin + " has an unsupported format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.reg.Register(context.Background(), tt.path)

			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, tt.message, res.Message())
			assert.False(t, res.Succeeded())
		})
	}
	assert.Empty(t, f.indexer.updates())
	assert.Empty(t, f.registered.Snapshot())
}

func TestRegister_Directory(t *testing.T) {
	// Given: a tree with valid and invalid files
	f := newFixture(t)
	a := f.file(t, "a.txt", "one")
	b := f.file(t, "sub/b.txt", "two")
	f.file(t, "sub/c.bin", "three")

	// When: registering the root
	res := f.reg.Register(context.Background(), f.dir)

	// Then: every valid file is indexed and the tree is monitored
	assert.Equal(t, DirectoryRegistrationSuccessful, res.Code)
	assert.Equal(t, []string{a, b}, f.indexer.updates())
	assert.True(t, f.registered.IsMonitored(filepath.Join(f.dir, "sub")))
	st, ok := f.reg.State(f.dir)
	require.True(t, ok)
	assert.Equal(t, State{IsDirectory: true, IsMonitoredCompletely: true}, st)

	// And: paths inside the tree report as already registered
	assert.Equal(t, DirectoryAlreadyRegistered, f.reg.Register(context.Background(), f.dir).Code)
	assert.Equal(t, DirectoryAlreadyRegistered, f.reg.Register(context.Background(), filepath.Join(f.dir, "sub")).Code)
	assert.Equal(t, FileAlreadyRegistered, f.reg.Register(context.Background(), b).Code)
}

func TestRegister_DirectoryUpgradesPartialWatch(t *testing.T) {
	// Given: a directory watched only for one registered file
	f := newFixture(t)
	a := f.file(t, "a.txt", "one")
	b := f.file(t, "b.txt", "two")
	require.Equal(t, FileRegistrationSuccessful, f.reg.Register(context.Background(), a).Code)
	require.True(t, f.watcher.IsPartial(f.dir))

	// When: registering the directory
	res := f.reg.Register(context.Background(), f.dir)

	// Then: the watch becomes complete and the sibling is indexed
	assert.Equal(t, DirectoryRegistrationSuccessful, res.Code)
	assert.False(t, f.watcher.IsPartial(f.dir))
	assert.Contains(t, f.indexer.updates(), b)
	st, _ := f.reg.State(f.dir)
	assert.True(t, st.IsMonitoredCompletely)
}

func TestRegister_AncestorWalkCompletesNestedPartialState(t *testing.T) {
	// Given: a file registered in a nested directory
	f := newFixture(t)
	nested := filepath.Join(f.dir, "b")
	file := f.file(t, "b/f.txt", "one")
	require.Equal(t, FileRegistrationSuccessful, f.reg.Register(context.Background(), file).Code)
	st, ok := f.reg.State(nested)
	require.True(t, ok)
	require.False(t, st.IsMonitoredCompletely)

	// When: registering the ancestor directory
	require.Equal(t, DirectoryRegistrationSuccessful, f.reg.Register(context.Background(), f.dir).Code)

	// Then: the nested directory is complete too
	st, _ = f.reg.State(nested)
	assert.True(t, st.IsMonitoredCompletely)
	assert.False(t, f.watcher.IsPartial(nested))

	// And: registering it reports it as already registered without a walk
	f.indexer.reset()
	assert.Equal(t, DirectoryAlreadyRegistered, f.reg.Register(context.Background(), nested).Code)
	assert.Empty(t, f.indexer.updates())
	assert.False(t, f.registered.IsRegisteredAsRoot(nested))
}

func TestRegister_WalkUnqueuesFilesBeforeIndexing(t *testing.T) {
	// Given: files left queued for removal by an earlier cancelled walk
	f := newFixture(t)
	a := f.file(t, "a.txt", "one")
	b := f.file(t, "sub/b.txt", "two")
	f.removal.Add(f.ids.ToID(a), f.ids.ToID(b))

	// When: registering the directory
	require.Equal(t, DirectoryRegistrationSuccessful, f.reg.Register(context.Background(), f.dir).Code)

	// Then: each file left the queue before it was indexed
	assert.Equal(t, []string{a, b}, f.indexer.updates())
	assert.Empty(t, f.indexer.pending)
	assert.Zero(t, f.removal.Len())
}

func TestRegister_CancelledDirectory(t *testing.T) {
	// Given: a cancellation requested before the walk starts
	f := newFixture(t)
	f.file(t, "a.txt", "one")
	require.Equal(t, roots.IndexingCancellationSuccessful, f.canceller.Cancel(f.dir))

	// When: registering the directory
	res := f.reg.Register(context.Background(), f.dir)

	// Then: the registration is torn down and the request is consumed
	assert.Equal(t, DirectoryRegistrationCancelled, res.Code)
	assert.Equal(t, "Registration of directory "+f.dir+" was cancelled", res.Message())
	assert.False(t, f.registered.IsMonitored(f.dir))
	assert.False(t, f.watcher.IsWatched(f.dir))
	assert.False(t, f.canceller.IsCancelled(f.ids.ToID(f.dir)))

	// And: a second attempt succeeds
	assert.Equal(t, DirectoryRegistrationSuccessful, f.reg.Register(context.Background(), f.dir).Code)
}

func TestUnregister_DirectoryThenRegisterAgain(t *testing.T) {
	// Given: a registered directory
	f := newFixture(t)
	a := f.file(t, "a.txt", "one")
	require.Equal(t, DirectoryRegistrationSuccessful, f.reg.Register(context.Background(), f.dir).Code)

	// When: unregistering it
	res := f.reg.Unregister(context.Background(), f.dir)

	// Then: it is filtered out and terms are kept
	assert.Equal(t, DirectoryUnregistrationSuccessful, res.Code)
	assert.Equal(t, "Successfully unregistered directory: "+f.dir, res.Message())
	assert.True(t, f.filtered.ShouldFilterOut(a))
	assert.Empty(t, f.indexer.clears())
	_, ok := f.reg.State(f.dir)
	assert.False(t, ok)

	// And: a second unregistration reports not registered
	again := f.reg.Unregister(context.Background(), f.dir)
	assert.Equal(t, NotRegistered, again.Code)
	assert.Equal(t, "File/directory "+f.dir+" is not registered", again.Message())

	// When: registering it again
	f.indexer.reset()
	assert.Equal(t, DirectoryRegistrationSuccessful, f.reg.Register(context.Background(), f.dir).Code)

	// Then: the filter is gone and the files are re-indexed
	assert.False(t, f.filtered.ShouldFilterOut(a))
	assert.Equal(t, []string{a}, f.indexer.updates())
}

func TestUnregister_FileInsideRegisteredDirectory(t *testing.T) {
	f := newFixture(t)
	a := f.file(t, "a.txt", "one")
	b := f.file(t, "b.txt", "two")
	require.Equal(t, DirectoryRegistrationSuccessful, f.reg.Register(context.Background(), f.dir).Code)

	res := f.reg.Unregister(context.Background(), a)

	assert.Equal(t, FileUnregistrationSuccessful, res.Code)
	assert.Equal(t, []string{a}, f.indexer.clears())
	assert.True(t, f.filtered.ShouldFilterOut(a))
	assert.False(t, f.filtered.ShouldFilterOut(b))

	// Re-registering the file clears the filter and re-indexes it.
	f.indexer.reset()
	assert.Equal(t, FileRegistrationSuccessful, f.reg.Register(context.Background(), a).Code)
	assert.False(t, f.filtered.ShouldFilterOut(a))
	assert.Equal(t, []string{a}, f.indexer.updates())
}

func TestUnregister_Unknown(t *testing.T) {
	f := newFixture(t)

	res := f.reg.Unregister(context.Background(), filepath.Join(f.dir, "nope.txt"))

	assert.Equal(t, NotRegistered, res.Code)
	assert.False(t, res.Succeeded())
}

func TestUnregister_ConcurrentCallsSucceedOnce(t *testing.T) {
	// Given: a registered directory
	f := newFixture(t)
	f.file(t, "a.txt", "one")
	require.Equal(t, DirectoryRegistrationSuccessful, f.reg.Register(context.Background(), f.dir).Code)

	// When: unregistering it from several goroutines at once
	const callers = 8
	codes := make(chan UnregistrationCode, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- f.reg.Unregister(context.Background(), f.dir).Code
		}()
	}
	wg.Wait()
	close(codes)

	// Then: exactly one call wins
	succeeded := 0
	for code := range codes {
		if code == DirectoryUnregistrationSuccessful {
			succeeded++
		} else {
			assert.Equal(t, NotRegistered, code)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestHandleEvent(t *testing.T) {
	// Given: a registered directory
	f := newFixture(t)
	a := f.file(t, "a.txt", "one")
	require.Equal(t, DirectoryRegistrationSuccessful, f.reg.Register(context.Background(), f.dir).Code)
	ctx := context.Background()

	t.Run("modify updates", func(t *testing.T) {
		f.indexer.reset()
		f.reg.HandleEvent(ctx, watcher.ChangeEvent{Path: a, Op: watcher.OpModify})
		assert.Equal(t, []string{a}, f.indexer.updates())
	})

	t.Run("modify past the size limit clears", func(t *testing.T) {
		f.indexer.reset()
		big := f.file(t, "a.txt", strings.Repeat("y", 100))
		f.reg.HandleEvent(ctx, watcher.ChangeEvent{Path: big, Op: watcher.OpModify})
		assert.Empty(t, f.indexer.updates())
		assert.Equal(t, []string{a}, f.indexer.clears())
	})

	t.Run("create of a file inside the tree updates", func(t *testing.T) {
		f.indexer.reset()
		n := f.file(t, "new.txt", "fresh")
		f.reg.HandleEvent(ctx, watcher.ChangeEvent{Path: n, Op: watcher.OpCreate})
		assert.Equal(t, []string{n}, f.indexer.updates())
	})

	t.Run("create of an invalid file is ignored", func(t *testing.T) {
		f.indexer.reset()
		n := f.file(t, "new.bin", "fresh")
		f.reg.HandleEvent(ctx, watcher.ChangeEvent{Path: n, Op: watcher.OpCreate})
		assert.Empty(t, f.indexer.updates())
	})

	t.Run("create of a directory walks it", func(t *testing.T) {
		f.indexer.reset()
		n := f.file(t, "nested/deep.txt", "fresh")
		f.reg.HandleEvent(ctx, watcher.ChangeEvent{Path: filepath.Dir(n), Op: watcher.OpCreate, IsDir: true})
		assert.Equal(t, []string{n}, f.indexer.updates())
		assert.True(t, f.watcher.IsWatched(filepath.Dir(n)))
	})

	t.Run("delete of a file updates", func(t *testing.T) {
		f.indexer.reset()
		require.NoError(t, os.Remove(a))
		f.reg.HandleEvent(ctx, watcher.ChangeEvent{Path: a, Op: watcher.OpDelete})
		assert.Equal(t, []string{a}, f.indexer.updates())
	})

	t.Run("events under a filtered path are skipped", func(t *testing.T) {
		sub := filepath.Join(f.dir, "nested")
		require.Equal(t, DirectoryUnregistrationSuccessful, f.reg.Unregister(ctx, sub).Code)
		f.indexer.reset()
		f.reg.HandleEvent(ctx, watcher.ChangeEvent{Path: filepath.Join(sub, "deep.txt"), Op: watcher.OpModify})
		assert.Empty(t, f.indexer.updates())
	})

	t.Run("delete of a root directory filters it", func(t *testing.T) {
		f.reg.HandleEvent(ctx, watcher.ChangeEvent{Path: f.dir, Op: watcher.OpDelete, IsDir: true})
		assert.True(t, f.filtered.ShouldFilterOut(f.dir))
		_, ok := f.reg.State(f.dir)
		assert.False(t, ok)
	})
}

func TestHandleEvent_CreateOutsideTreeRegisters(t *testing.T) {
	f := newFixture(t)
	path := f.file(t, "solo.txt", "alone")

	f.reg.HandleEvent(context.Background(), watcher.ChangeEvent{Path: path, Op: watcher.OpCreate})

	assert.True(t, f.registered.IsRegisteredAsRoot(path))
	assert.Equal(t, []string{path}, f.indexer.updates())
}

func TestStatesAndReset(t *testing.T) {
	f := newFixture(t)
	a := f.file(t, "a.txt", "one")
	require.Equal(t, FileRegistrationSuccessful, f.reg.Register(context.Background(), a).Code)

	paths, states := f.reg.States()
	assert.Equal(t, []string{f.dir, a}, paths)
	assert.Len(t, states, 2)

	f.reg.Reset()
	paths, _ = f.reg.States()
	assert.Empty(t, paths)
}

func TestResultCodes(t *testing.T) {
	assert.Equal(t, "file_registration_successful", FileRegistrationSuccessful.String())
	assert.Equal(t, "unknown", Code(0).String())
	assert.Equal(t, "not_registered", NotRegistered.String())
	assert.Equal(t, "File /x is not a directory or a normal file", Result{Code: AbnormalFile, Path: "/x"}.Message())
	assert.Equal(t, "File /x is already registered", Result{Code: FileAlreadyRegistered, Path: "/x"}.Message())
	assert.Equal(t, "Successfully unregistered file: /x", UnregistrationResult{Code: FileUnregistrationSuccessful, Path: "/x"}.Message())
}
