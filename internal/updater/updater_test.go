package updater

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/index"
	"github.com/Aman-CERP/fsindex/internal/locker"
	"github.com/Aman-CERP/fsindex/internal/storage"
	"github.com/Aman-CERP/fsindex/internal/term"
	"github.com/Aman-CERP/fsindex/internal/tokenizer"
)

type fixture struct {
	ids     *fileid.Registry
	indices index.Set
	store   *storage.Cache
	updater *Updater
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.New(storage.Config{
		Dir:                  filepath.Join(t.TempDir(), "storage"),
		MemoryEntries:        16,
		FilesystemThreshold:  1024,
		CompressionThreshold: 64,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		ids:     fileid.NewRegistry(),
		indices: index.Build(true, true),
		store:   store,
		dir:     dir,
	}
	f.updater = New(Deps{
		IDs:        f.ids,
		Locks:      locker.New(),
		Indices:    f.indices,
		Tokenizers: tokenizer.Default(true, true),
		Storage:    store,
	})
	return f
}

func (f *fixture) write(t *testing.T, name, content string) fileid.FileID {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return f.ids.ToID(path)
}

func (f *fixture) find(t term.Term) []index.Match {
	var out []index.Match
	for _, idx := range f.indices.Executing(t) {
		out = append(out, idx.Find(t)...)
	}
	return out
}

func TestUpdate_IndexesNewFile(t *testing.T) {
	// Given: a file never indexed before
	f := newFixture(t)
	id := f.write(t, "a.txt", "One two two. Three!")

	// When: updating it
	require.NoError(t, f.updater.Update(context.Background(), id))

	// Then: words and sentences are indexed with counts and content is cached
	assert.Equal(t, []index.Match{{FileID: id, Count: 2}}, f.find(term.Word("two")))
	assert.Equal(t, []index.Match{{FileID: id, Count: 1}}, f.find(term.Sentence("One two two.")))
	cached, err := f.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "One two two. Three!", cached)
}

func TestUpdate_Modification(t *testing.T) {
	// Given: an indexed file containing "one two"
	f := newFixture(t)
	id := f.write(t, "m.txt", "one two")
	require.NoError(t, f.updater.Update(context.Background(), id))

	// When: it changes to "two three"
	f.write(t, "m.txt", "two three")
	require.NoError(t, f.updater.Update(context.Background(), id))

	// Then: "one" is gone, "two" stays once, "three" appears
	assert.Empty(t, f.find(term.Word("one")))
	assert.Equal(t, []index.Match{{FileID: id, Count: 1}}, f.find(term.Word("two")))
	assert.Equal(t, []index.Match{{FileID: id, Count: 1}}, f.find(term.Word("three")))
	assert.Equal(t, term.Counts{term.Word("two"): 1, term.Word("three"): 1},
		f.indices.For(term.KindWord)[0].FindByDocID(id))
}

func TestUpdate_DeletedFileEmptiesIndex(t *testing.T) {
	f := newFixture(t)
	id := f.write(t, "d.txt", "gone soon")
	require.NoError(t, f.updater.Update(context.Background(), id))

	path, err := f.ids.ToPath(id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	require.NoError(t, f.updater.Update(context.Background(), id))

	assert.Empty(t, f.find(term.Word("gone")))
	for _, st := range f.indices.Stats() {
		assert.Zero(t, st.Terms, st.Name)
		assert.Zero(t, st.Files, st.Name)
	}
	assert.Equal(t, storage.Stats{}, f.store.Stats())
}

func TestUpdate_UnchangedContentKeepsIndex(t *testing.T) {
	f := newFixture(t)
	id := f.write(t, "u.txt", "same words here")
	require.NoError(t, f.updater.Update(context.Background(), id))

	require.NoError(t, f.updater.Update(context.Background(), id))

	assert.Equal(t, []index.Match{{FileID: id, Count: 1}}, f.find(term.Word("same")))
}

func TestUpdate_RebuildsAfterIndexRemoval(t *testing.T) {
	// Given: a file whose index entries were purged but whose content is cached
	f := newFixture(t)
	id := f.write(t, "r.txt", "alpha beta")
	require.NoError(t, f.updater.Update(context.Background(), id))
	f.indices.Remove(id)

	// When: updating without any content change
	require.NoError(t, f.updater.Update(context.Background(), id))

	// Then: the terms are indexed again
	assert.Equal(t, []index.Match{{FileID: id, Count: 1}}, f.find(term.Word("alpha")))
}

func TestUpdate_UnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.updater.Update(context.Background(), "not-an-id")

	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeUnknownID, fserrors.GetCode(err))
}

func TestUpdate_ConcurrentSameFile(t *testing.T) {
	// Given: a file updated from many goroutines at once
	f := newFixture(t)
	id := f.write(t, "c.txt", "red green blue red")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.updater.Update(context.Background(), id))
		}()
	}
	wg.Wait()

	// Then: counts reflect the content exactly once
	assert.Equal(t, []index.Match{{FileID: id, Count: 2}}, f.find(term.Word("red")))
	assert.Equal(t, []index.Match{{FileID: id, Count: 1}}, f.find(term.Word("blue")))
}

func TestUpdate_DifferentFilesInParallel(t *testing.T) {
	f := newFixture(t)
	ids := make([]fileid.FileID, 8)
	for i := range ids {
		ids[i] = f.write(t, filepath.Base(t.TempDir())+".txt", "shared word")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id fileid.FileID) {
			defer wg.Done()
			assert.NoError(t, f.updater.Update(context.Background(), id))
		}(id)
	}
	wg.Wait()

	assert.Len(t, f.find(term.Word("shared")), len(ids))
}

func TestClear_EmptiesIndexForExistingFile(t *testing.T) {
	// Given: an indexed file that still exists on disk
	f := newFixture(t)
	id := f.write(t, "k.txt", "kept on disk")
	require.NoError(t, f.updater.Update(context.Background(), id))

	// When: clearing it
	require.NoError(t, f.updater.Clear(context.Background(), id))

	// Then: nothing matches and a later update restores the terms
	assert.Empty(t, f.find(term.Word("kept")))
	assert.Empty(t, f.indices.For(term.KindWord)[0].FindByDocID(id))

	require.NoError(t, f.updater.Update(context.Background(), id))
	assert.Equal(t, []index.Match{{FileID: id, Count: 1}}, f.find(term.Word("kept")))
}
