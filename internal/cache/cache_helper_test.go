package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestHelper(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheHelper(client, "exam:"), mr
}

type cachedExam struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func TestCacheHelper_SetGet(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	want := cachedExam{ID: 1, Title: "History"}
	if err := helper.Set(ctx, "id:1", want, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got cachedExam
	if err := helper.Get(ctx, "id:1", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCacheHelper_GetMiss(t *testing.T) {
	helper, _ := newTestHelper(t)

	var got cachedExam
	if err := helper.Get(context.Background(), "missing", &got); err != ErrCacheNotFound {
		t.Fatalf("Get on missing key = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_NilClient(t *testing.T) {
	helper := NewCacheHelper(nil, "exam:")
	ctx := context.Background()

	var got cachedExam
	if err := helper.Get(ctx, "k", &got); err != ErrCacheNotAvailable {
		t.Errorf("Get = %v, want ErrCacheNotAvailable", err)
	}
	if _, err := helper.Exists(ctx, "k"); err != ErrCacheNotAvailable {
		t.Errorf("Exists = %v, want ErrCacheNotAvailable", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	if err := helper.SetString(ctx, "id:1", "x", time.Minute); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := helper.Delete(ctx, "id:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err := helper.Exists(ctx, "id:1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("key still present after delete")
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	for _, key := range []string{"id:1", "id:1:questions", "id:2"} {
		if err := helper.SetString(ctx, key, "x", time.Minute); err != nil {
			t.Fatalf("SetString failed: %v", err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "id:1*"); err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}

	for key, want := range map[string]bool{
		"id:1":           false,
		"id:1:questions": false,
		"id:2":           true,
	} {
		exists, err := helper.Exists(ctx, key)
		if err != nil {
			t.Fatalf("Exists(%s) failed: %v", key, err)
		}
		if exists != want {
			t.Errorf("Exists(%s) = %v, want %v", key, exists, want)
		}
	}
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return cachedExam{ID: 7, Title: "Cached"}, nil
	}

	// Cold path: miss, fetch, fill dest.
	var first cachedExam
	if err := helper.CacheOrExecute(ctx, "id:7", &first, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch called %d times, want 1", calls)
	}
	if first.Title != "Cached" {
		t.Errorf("dest not filled from fetch: %+v", first)
	}

	// Warm path: pre-populated entries are served without fetching. The
	// cold-path write-back is asynchronous, so warm the key explicitly.
	if err := helper.Set(ctx, "id:8", cachedExam{ID: 8, Title: "Warm"}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var warm cachedExam
	if err := helper.CacheOrExecute(ctx, "id:8", &warm, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times on a warm key, want 1", calls)
	}
	if warm.Title != "Warm" {
		t.Errorf("dest not filled from cache: %+v", warm)
	}
}

func TestCacheManager_NilClientDegrades(t *testing.T) {
	cm := NewCacheManager(nil)
	ctx := context.Background()

	if err := cm.HealthCheck(ctx); err != ErrCacheNotAvailable {
		t.Errorf("HealthCheck = %v, want ErrCacheNotAvailable", err)
	}

	// Invalidation on a degraded cache must not error out callers.
	InvalidateExamCache(ctx, cm, 1)
	InvalidateQuestionCache(ctx, cm, 1, 2)
}
