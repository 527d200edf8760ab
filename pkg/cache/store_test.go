package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("open creates bucket", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		has, err := store.Has(ctx, "shop-v1")
		if err != nil {
			t.Fatalf("Has failed: %v", err)
		}
		if has {
			t.Fatal("bucket exists before Open")
		}

		bucket, err := store.Open(ctx, "shop-v1")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if bucket.Name() != "shop-v1" {
			t.Errorf("Name() = %v, want shop-v1", bucket.Name())
		}

		has, err = store.Has(ctx, "shop-v1")
		if err != nil {
			t.Fatalf("Has failed: %v", err)
		}
		if !has {
			t.Error("bucket missing after Open")
		}
	})

	t.Run("open is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first, _ := store.Open(ctx, "shop-v1")
		if err := first.Put(ctx, Key{Method: "GET", Path: "/"}, &Entry{Data: []byte("home")}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		second, err := store.Open(ctx, "shop-v1")
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		if _, err := second.Match(ctx, Key{Method: "GET", Path: "/"}); err != nil {
			t.Errorf("entry lost on reopen: %v", err)
		}

		names, _ := store.Keys(ctx)
		if len(names) != 1 {
			t.Errorf("Keys() = %v, want one bucket", names)
		}
	})

	t.Run("keys in creation order", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, name := range []string{"v1", "v3", "v2"} {
			if _, err := store.Open(ctx, name); err != nil {
				t.Fatalf("Open(%s) failed: %v", name, err)
			}
			time.Sleep(2 * time.Millisecond)
		}

		names, err := store.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		if diff := cmp.Diff([]string{"v1", "v3", "v2"}, names); diff != "" {
			t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("put and match", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		bucket, _ := store.Open(ctx, "shop-v1")

		key := Key{Method: "GET", Path: "/logo.png"}
		entry := &Entry{
			Data:        []byte("\x89PNG\r\n"),
			StatusCode:  200,
			Headers:     http.Header{"Content-Type": []string{"image/png"}},
			Destination: "image",
			CachedAt:    time.Now(),
		}

		if err := bucket.Put(ctx, key, entry); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := bucket.Match(ctx, key)
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if diff := cmp.Diff(entry, got); diff != "" {
			t.Errorf("Match() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("match miss", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		bucket, _ := store.Open(ctx, "shop-v1")

		_, err := bucket.Match(ctx, Key{Method: "GET", Path: "/missing.js"})
		if !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Expected ErrCacheMiss, got %v", err)
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		bucket, _ := store.Open(ctx, "shop-v1")
		key := Key{Method: "GET", Path: "/assets/app.css"}

		_ = bucket.Put(ctx, key, &Entry{Data: []byte("old")})
		_ = bucket.Put(ctx, key, &Entry{Data: []byte("new")})

		got, err := bucket.Match(ctx, key)
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if string(got.Data) != "new" {
			t.Errorf("Data = %q, want new", got.Data)
		}
		keys, _ := bucket.Keys(ctx)
		if len(keys) != 1 {
			t.Errorf("Keys() = %v, want a single entry", keys)
		}
	})

	t.Run("put nil entry", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		bucket, _ := store.Open(ctx, "shop-v1")

		if err := bucket.Put(ctx, Key{Path: "/"}, nil); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("Put(nil) error = %v, want ErrInvalidEntry", err)
		}
	})

	t.Run("stored entry is independent of caller", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		bucket, _ := store.Open(ctx, "shop-v1")
		key := Key{Method: "GET", Path: "/"}

		entry := &Entry{Data: []byte("home")}
		_ = bucket.Put(ctx, key, entry)
		entry.Data[0] = 'X'

		got, _ := bucket.Match(ctx, key)
		if string(got.Data) != "home" {
			t.Errorf("stored data changed to %q", got.Data)
		}
	})

	t.Run("delete entry", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		bucket, _ := store.Open(ctx, "shop-v1")
		key := Key{Method: "GET", Path: "/"}
		_ = bucket.Put(ctx, key, &Entry{Data: []byte("home")})

		deleted, err := bucket.Delete(ctx, key)
		if err != nil || !deleted {
			t.Fatalf("Delete = %v, %v; want true, nil", deleted, err)
		}
		deleted, err = bucket.Delete(ctx, key)
		if err != nil || deleted {
			t.Errorf("second Delete = %v, %v; want false, nil", deleted, err)
		}
		if _, err := bucket.Match(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
		}
	})

	t.Run("delete bucket", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		stale, _ := store.Open(ctx, "shop-v1")
		_ = stale.Put(ctx, Key{Method: "GET", Path: "/"}, &Entry{Data: []byte("old home")})
		_, _ = store.Open(ctx, "shop-v2")

		deleted, err := store.Delete(ctx, "shop-v1")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if !deleted {
			t.Error("Delete reported bucket missing")
		}

		names, _ := store.Keys(ctx)
		if fmt.Sprint(names) != "[shop-v2]" {
			t.Errorf("Keys() = %v, want [shop-v2]", names)
		}

		// Entries are gone with the bucket, even through a fresh Open
		reopened, _ := store.Open(ctx, "shop-v1")
		if _, err := reopened.Match(ctx, Key{Method: "GET", Path: "/"}); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("entry survived bucket deletion: %v", err)
		}

		deleted, err = store.Delete(ctx, "never-existed")
		if err != nil || deleted {
			t.Errorf("Delete(missing) = %v, %v; want false, nil", deleted, err)
		}
	})

	t.Run("put into deleted bucket", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		bucket, _ := store.Open(ctx, "shop-v1")
		_, _ = store.Delete(ctx, "shop-v1")

		err := bucket.Put(ctx, Key{Method: "GET", Path: "/"}, &Entry{Data: []byte("late")})
		if !errors.Is(err, ErrBucketNotFound) {
			t.Errorf("Put after delete error = %v, want ErrBucketNotFound", err)
		}
		if has, _ := store.Has(ctx, "shop-v1"); has {
			t.Error("Put resurrected a deleted bucket")
		}
	})

	t.Run("concurrent puts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		bucket, _ := store.Open(ctx, "shop-v1")

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := Key{Method: "GET", Path: fmt.Sprintf("/img/%d.png", i)}
				if err := bucket.Put(ctx, key, &Entry{Data: []byte{byte(i)}}); err != nil {
					t.Errorf("Put %d failed: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		keys, _ := bucket.Keys(ctx)
		if len(keys) != 20 {
			t.Errorf("len(Keys()) = %d, want 20", len(keys))
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}
