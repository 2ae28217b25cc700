// Package dataloader batches the lookups made while shaping a result tree so
// that each relationship hop costs one backend query per level instead of
// one per parent.
//
// Load a hop for every sibling at once and regroup the results:
//
//	rels, _ := tx.ReadRels(ctx, database.NewRelQuery("Project", "owner").WithSrcIDs(ids...))
//	groups := dataloader.GroupByKey(rels, func(r *database.Rel) string { return database.IDKey(r.Src.ID) })
//	perParent := dataloader.OrderGroupsByKeys(keys, groups)
//
// A Loader memoizes single-entity lookups, such as destination nodes shared by
// several relationships, for the lifetime of one operation.
package dataloader

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when an entity is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// BatchFunc loads the entities with the given keys. The result may be in any
// order and may omit keys that have no entity.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are zero values with an ErrNotFound error at their index.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}

	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// GroupByKey groups entities by a key function, keeping their order within
// each group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of each key, in key order.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// Loader memoizes a BatchFunc. Keys already loaded, found or not, are served
// from memory; the rest are fetched in one batch.
type Loader[K comparable, V any] struct {
	batch BatchFunc[K, V]
	key   KeyFunc[K, V]

	mu    sync.Mutex
	cache map[K]result[V]
}

type result[V any] struct {
	v  V
	ok bool
}

// NewLoader returns a loader calling batch for keys it has not seen.
func NewLoader[K comparable, V any](batch BatchFunc[K, V], key KeyFunc[K, V]) *Loader[K, V] {
	return &Loader[K, V]{batch: batch, key: key, cache: make(map[K]result[V])}
}

// LoadMany returns the entity of each key in key order. A key without an
// entity has the zero value and ErrNotFound at its index.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]V, []error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		missing []K
		seen    = make(map[K]bool)
	)
	for _, k := range keys {
		if _, ok := l.cache[k]; !ok && !seen[k] {
			missing = append(missing, k)
			seen[k] = true
		}
	}
	if len(missing) > 0 {
		values, err := l.batch(ctx, missing)
		if err != nil {
			return nil, nil, err
		}
		for _, k := range missing {
			l.cache[k] = result[V]{}
		}
		for _, v := range values {
			l.cache[l.key(v)] = result[V]{v: v, ok: true}
		}
	}

	out := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, k := range keys {
		if r := l.cache[k]; r.ok {
			out[i] = r.v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return out, errs, nil
}

// Prime stores v without loading it.
func (l *Loader[K, V]) Prime(v V) {
	l.mu.Lock()
	l.cache[l.key(v)] = result[V]{v: v, ok: true}
	l.mu.Unlock()
}

// Clear forgets keys so the next load fetches them again.
func (l *Loader[K, V]) Clear(keys ...K) {
	l.mu.Lock()
	for _, k := range keys {
		delete(l.cache, k)
	}
	l.mu.Unlock()
}
