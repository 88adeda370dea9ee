package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/researchchat/tools/web_search"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
)

const keyPrefix = "researchchat:search:"

// Searcher serves repeated queries from Redis. Only successful responses are
// cached; Redis failures degrade to a direct call.
type Searcher struct {
	next   web_search.WebSearcher
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *log.Logger
}

func New(next web_search.WebSearcher, rdb redis.UniversalClient, ttl time.Duration, logger *log.Logger) *Searcher {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Searcher{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (s *Searcher) Name() string { return s.next.Name() }

// Key derives the cache key for a query and its options.
func (s *Searcher) Key(query string, opts web_search.Options) string {
	raw := fmt.Sprintf("%s|%s|%d|%s", s.next.Name(), opts.Depth, opts.MaxResults, strings.ToLower(strings.TrimSpace(query)))
	sum := sha256.Sum256([]byte(raw))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (s *Searcher) Search(ctx context.Context, query string, opts web_search.Options) (models.Response, error) {
	key := s.Key(query, opts)
	cached, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var resp models.Response
		if jsonErr := json.Unmarshal(cached, &resp); jsonErr == nil {
			return resp, nil
		}
		s.logger.Printf("[SEARCH] dropping corrupt cache entry %s", key)
	case !errors.Is(err, redis.Nil):
		s.logger.Printf("[SEARCH] cache read failed: %v", err)
	}

	resp, err := s.next.Search(ctx, query, opts)
	if err != nil {
		return models.Response{}, err
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return resp, nil
	}
	if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.logger.Printf("[SEARCH] cache write failed: %v", err)
	}
	return resp, nil
}
