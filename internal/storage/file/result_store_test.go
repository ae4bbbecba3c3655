package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

func TestAppendBuildsJSONArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "results.json")
	store, err := New(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, crawler.NewSuccessRecord(
		crawler.Listing{DataID: "1", Discipline: "IT"},
		crawler.ProgramInfo{ProgramName: "BSc", University: "UOL"},
	)))
	require.NoError(t, store.Append(ctx, crawler.NewFailureRecord(
		crawler.Listing{DataID: "2", ProgramName: "MBA"},
		crawler.PermanentFailureMessage(5),
	)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 2)
	require.Equal(t, "BSc", items[0]["program_name"])
	require.Equal(t, "IT", items[0]["discipline"])
	require.Equal(t, "Failed after 5 global retry attempts", items[1]["error"])

	all, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, items, all)
}

func TestConcurrentAppendsKeepEveryRecord(t *testing.T) {
	t.Parallel()

	store, err := New(filepath.Join(t.TempDir(), "results.json"))
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			listing := crawler.Listing{DataID: fmt.Sprint(i)}
			require.NoError(t, store.Append(context.Background(), crawler.NewFailureRecord(listing, "x")))
		}(i)
	}
	wg.Wait()

	all, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, writers)
	seen := map[any]bool{}
	for _, rec := range all {
		seen[rec["data_id"]] = true
	}
	require.Len(t, seen, writers)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(store.Path()), "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestReadAllMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store, err := New(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	all, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestAppendRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	store, err := New(path)
	require.NoError(t, err)
	err = store.Append(context.Background(), crawler.NewFailureRecord(crawler.Listing{}, "x"))
	require.Error(t, err)
}

func TestResetTruncates(t *testing.T) {
	t.Parallel()

	store, err := New(filepath.Join(t.TempDir(), "results.json"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, crawler.NewFailureRecord(crawler.Listing{}, "x")))
	require.NoError(t, store.Reset(ctx))
	all, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestSeparateStoresOnOnePathKeepEveryRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.json")
	first, err := New(path)
	require.NoError(t, err)
	second, err := New(path)
	require.NoError(t, err)

	const perStore = 10
	var wg sync.WaitGroup
	for i := 0; i < perStore; i++ {
		for j, store := range []*ResultStore{first, second} {
			wg.Add(1)
			go func(store *ResultStore, id string) {
				defer wg.Done()
				require.NoError(t, store.Append(context.Background(), crawler.NewFailureRecord(crawler.Listing{DataID: id}, "x")))
			}(store, fmt.Sprintf("%d-%d", j, i))
		}
	}
	wg.Wait()

	all, err := first.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2*perStore)
}

func TestAppendWaitsForExternalLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.json")
	store, err := New(path)
	require.NoError(t, err)

	other := flock.New(path + ".lock")
	require.NoError(t, other.Lock())

	done := make(chan error, 1)
	go func() {
		done <- store.Append(context.Background(), crawler.NewFailureRecord(crawler.Listing{DataID: "1"}, "x"))
	}()

	select {
	case err := <-done:
		t.Fatalf("append finished while another writer held the lock: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, other.Unlock())
	require.NoError(t, <-done)

	all, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
}
