package fhirpath

import "sync"

// ResourceResolver resolves a Reference value's target identity to a
// materialized resource Value, for the `resolve()` function. The indexing
// path installs a stub that returns a bare {resourceType, id} skeleton
// (sufficient for `resolve() is Patient`-style discriminators); a full
// evaluation path installs one backed by the resource store with an LRU
// cache in front of it (spec §4.2).
type ResourceResolver interface {
	Resolve(reference string) (Value, bool)
}

// StubResolver implements ResourceResolver by parsing `ResourceType/id`
// out of the reference string without touching storage.
type StubResolver struct{}

func (StubResolver) Resolve(reference string) (Value, bool) {
	resourceType, id, ok := splitRelativeReference(reference)
	if !ok {
		return Empty(), false
	}
	return Value{
		Kind: KindObject,
		Object: map[string]Collection{
			"resourceType": {Str(resourceType)},
			"id":           {Str(id)},
		},
	}, true
}

func splitRelativeReference(ref string) (resourceType, id string, ok bool) {
	slash := -1
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '/' {
			slash = i
			break
		}
	}
	if slash <= 0 || slash == len(ref)-1 {
		return "", "", false
	}
	typeStart := 0
	for i := slash - 1; i >= 0; i-- {
		if ref[i] == '/' {
			typeStart = i + 1
			break
		}
	}
	return ref[typeStart:slash], ref[slash+1:], true
}

// LRUResolver wraps another ResourceResolver with a bounded cache, for the
// full-evaluation path where resolving a reference means a store read.
type LRUResolver struct {
	mu       sync.Mutex
	backing  func(reference string) (Value, bool)
	capacity int
	order    []string
	cache    map[string]Value
}

func NewLRUResolver(capacity int, backing func(reference string) (Value, bool)) *LRUResolver {
	return &LRUResolver{
		backing:  backing,
		capacity: capacity,
		cache:    make(map[string]Value, capacity),
	}
}

func (r *LRUResolver) Resolve(reference string) (Value, bool) {
	r.mu.Lock()
	if v, ok := r.cache[reference]; ok {
		r.touch(reference)
		r.mu.Unlock()
		return v, true
	}
	r.mu.Unlock()

	v, ok := r.backing(reference)
	if !ok {
		return Empty(), false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[reference] = v
	r.order = append(r.order, reference)
	if len(r.order) > r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.cache, oldest)
	}
	return v, true
}

func (r *LRUResolver) touch(key string) {
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			r.order = append(r.order, key)
			return
		}
	}
}
