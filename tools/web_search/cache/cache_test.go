package cache_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/researchchat/tools/web_search"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/cache"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
)

type countingSearcher struct {
	calls int32
	fail  bool
}

func (c *countingSearcher) Name() string { return "stub" }

func (c *countingSearcher) Search(ctx context.Context, q string, opts web_search.Options) (models.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.fail {
		return models.Response{}, errors.New("boom")
	}
	return models.Response{Query: q, Results: []models.Result{{URL: "https://example.com", Title: "t"}}}, nil
}

func TestKeyDependsOnOptions(t *testing.T) {
	s := cache.New(&countingSearcher{}, nil, time.Minute, log.New(io.Discard, "", 0))
	a := s.Key("Go Modules", web_search.Options{MaxResults: 2, Depth: "basic"})
	b := s.Key("  go modules ", web_search.Options{MaxResults: 2, Depth: "basic"})
	c := s.Key("go modules", web_search.Options{MaxResults: 2, Depth: "advanced"})
	if a != b {
		t.Fatalf("expected case/space-insensitive key")
	}
	if a == c {
		t.Fatalf("expected depth to change the key")
	}
}

func TestSearcherCachesResponses(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer rdb.Close()

	next := &countingSearcher{}
	s := cache.New(next, rdb, time.Minute, log.New(io.Discard, "", 0))
	opts := web_search.Options{MaxResults: 2, Depth: "basic"}
	for i := 0; i < 3; i++ {
		resp, err := s.Search(ctx, "query", opts)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(resp.Results) != 1 {
			t.Fatalf("unexpected response %+v", resp)
		}
	}
	if got := atomic.LoadInt32(&next.calls); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}

	failing := &countingSearcher{fail: true}
	fs := cache.New(failing, rdb, time.Minute, log.New(io.Discard, "", 0))
	for i := 0; i < 2; i++ {
		if _, err := fs.Search(ctx, "other", opts); err == nil {
			t.Fatalf("expected upstream error")
		}
	}
	if got := atomic.LoadInt32(&failing.calls); got != 2 {
		t.Fatalf("errors must not be cached, got %d calls", got)
	}
}
