package iziqueue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// checkUnique consults the optional unique-job cache before falling
// through to the adapter's authoritative CheckUnique. A cache hit is
// always re-validated: the cache can go stale once a job's state moves
// past opts.States (a false positive), but a Set only ever follows a
// confirmed insert or a conflict confirmed by CheckUnique, so it never
// produces a false negative.
func (o *Orchestrator) checkUnique(ctx context.Context, opts adapter.UniqueOptions, job jobqueue.Job) (*jobqueue.Job, error) {
	opts = opts.Defaults()
	key := uniqueCacheKey(opts, job)

	if o.uniqueCache != nil && key != "" {
		if id, err := o.uniqueCache.Get(ctx, key); err == nil {
			if existing, err := o.store.GetJob(ctx, id); err == nil && existing != nil && !existing.State.Terminal() {
				return existing, nil
			}
			// Stale entry: the cached job no longer conflicts, fall through
			// to the adapter for the authoritative answer.
			_ = o.uniqueCache.Delete(ctx, key)
		}
	}

	existing, err := o.store.CheckUnique(ctx, opts, job)
	if err != nil {
		return nil, err
	}
	if existing != nil && o.uniqueCache != nil && key != "" {
		_ = o.uniqueCache.Set(ctx, key, existing.ID, uniqueCacheTTL(opts))
	}
	return existing, nil
}

// cacheUniqueInsert writes through to the unique cache after a fresh
// insert that requested uniqueness, so the next conflicting Insert can
// skip the database round trip entirely.
func (o *Orchestrator) cacheUniqueInsert(ctx context.Context, opts adapter.UniqueOptions, job jobqueue.Job) {
	if o.uniqueCache == nil {
		return
	}
	key := uniqueCacheKey(opts.Defaults(), job)
	if key == "" {
		return
	}
	_ = o.uniqueCache.Set(ctx, key, job.ID, uniqueCacheTTL(opts.Defaults()))
}

func uniqueCacheTTL(opts adapter.UniqueOptions) time.Duration {
	if opts.Infinite {
		return -1
	}
	return opts.Period
}

// uniqueCacheKey builds a deterministic "worker|queue|args-hash" key
// matching opts' configured Fields/Keys, so two logically identical
// unique inserts collapse to the same cache entry regardless of map key
// ordering in job.Args.
func uniqueCacheKey(opts adapter.UniqueOptions, job jobqueue.Job) string {
	var parts []string
	if opts.HasField("worker") {
		parts = append(parts, "w:"+job.Worker)
	}
	if opts.HasField("queue") {
		parts = append(parts, "q:"+job.Queue)
	}
	if opts.HasField("args") {
		parts = append(parts, "a:"+canonicalArgsDigest(job.Args, opts.Keys))
	}
	if len(parts) == 0 {
		return ""
	}

	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "iziqueue:unique:" + hex.EncodeToString(h.Sum(nil))
}

// canonicalArgsDigest hashes job args in a key-order-independent way,
// restricted to keys when non-empty, so {"a":1,"b":2} and {"b":2,"a":1}
// produce the same digest and unrelated fields don't defeat a
// Keys-scoped uniqueness check.
func canonicalArgsDigest(args json.RawMessage, keys []string) string {
	if len(args) == 0 {
		return hex.EncodeToString(sha256.New().Sum(nil))
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		// Not a JSON object: hash the raw bytes directly rather than
		// failing uniqueness outright.
		sum := sha256.Sum256(args)
		return hex.EncodeToString(sum[:])
	}

	names := make([]string, 0, len(m))
	for k := range m {
		if len(keys) > 0 && !containsString(keys, k) {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, k := range names {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(m[k])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
