package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/mohammad-safakhou/researchchat/internal/helpers"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
)

// EmptyContentHash is the fingerprint of an empty result list. It can never
// collide with a real hash, which is hex encoded.
const EmptyContentHash = "empty"

// DedupResponse drops repeated results and repeated images from one search
// response, keeping the first occurrence of each normalized URL.
func DedupResponse(resp models.Response) models.Response {
	out := models.Response{Query: resp.Query}
	if resp.Results != nil {
		seen := make(map[string]struct{}, len(resp.Results))
		out.Results = make([]models.Result, 0, len(resp.Results))
		for _, r := range resp.Results {
			key := helpers.NormalizeURL(r.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.Results = append(out.Results, r)
		}
	}
	if resp.Images != nil {
		seen := make(map[string]struct{}, len(resp.Images))
		out.Images = make([]models.Image, 0, len(resp.Images))
		for _, img := range resp.Images {
			key := helpers.NormalizeURL(img.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.Images = append(out.Images, img)
		}
	}
	return out
}

// ContentHash fingerprints a result list independently of its order.
func ContentHash(results []models.Result) string {
	if len(results) == 0 {
		return EmptyContentHash
	}
	sorted := append([]models.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := helpers.NormalizeURL(sorted[i].URL), helpers.NormalizeURL(sorted[j].URL)
		if ki != kj {
			return ki < kj
		}
		// Equal keys still need a total order for the hash to be stable.
		bi, _ := json.Marshal(sorted[i])
		bj, _ := json.Marshal(sorted[j])
		return string(bi) < string(bj)
	})
	payload, err := json.Marshal(sorted)
	if err != nil {
		return EmptyContentHash
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// poolResponses dedups each successful response, drops empty ones and keeps
// one response per content hash, in batch order.
func poolResponses(outcomes []searchOutcome) []searchOutcome {
	seen := make(map[string]struct{}, len(outcomes))
	pooled := make([]searchOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		resp := DedupResponse(o.Response)
		if len(resp.Results) == 0 {
			continue
		}
		hash := ContentHash(resp.Results)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		o.Response = resp
		pooled = append(pooled, o)
	}
	return pooled
}

// DedupeEvidence keeps the first evidence item per content hash of its
// results. Items without a result payload are kept as they are.
func DedupeEvidence(items []Evidence) []Evidence {
	out := make([]Evidence, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, ev := range items {
		if ev.Result == nil || ev.Result.Results == nil {
			out = append(out, ev)
			continue
		}
		hash := ContentHash(ev.Result.Results)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		out = append(out, ev)
	}
	return out
}
