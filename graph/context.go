package graph

import (
	"fmt"
	"sort"
)

// Key is a typed context key: a (name, type) pair.
//
// Keys are the only way to read or write Context entries. Two keys with the
// same name but different type parameters address distinct entries, so a
// stale producer writing Key[int]("score") can never corrupt a consumer
// reading Key[float64]("score").
//
// Create keys with NewKey and share them between producing and consuming
// nodes:
//
//	var UserQuery = graph.NewKey[string]("user_query")
//
//	ctx = graph.With(ctx, UserQuery, "what is the capital of France?")
//	q, ok := graph.Get(ctx, UserQuery)
//
// Type parameter T is the value type stored under this key.
type Key[T any] struct {
	name string
}

// NewKey creates a typed context key with the given name.
//
// The key's type descriptor is derived from T, so NewKey[string]("x") and
// NewKey[int]("x") are distinct keys.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's name component.
func (k Key[T]) Name() string { return k.name }

// TypeName returns the key's type descriptor. It is the string used to tag
// serialized context values so the serializer can restore them.
func (k Key[T]) TypeName() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// contextEntry is the internal representation of one Context value.
// The type name travels with the value so snapshots can round-trip it.
type contextEntry struct {
	typeName string
	value    any
}

// ctxKey is the internal map key: name plus type descriptor.
type ctxKey struct {
	name     string
	typeName string
}

// Context is an immutable mapping from typed keys to values.
//
// Every mutating operation returns a new Context; the receiver is never
// modified. Snapshots of a Context are therefore safe to share across
// goroutines and fork branches without copying.
//
// The zero value is not usable; create contexts with NewContext.
type Context struct {
	entries map[ctxKey]contextEntry
}

// NewContext creates an empty context.
func NewContext() Context {
	return Context{entries: map[ctxKey]contextEntry{}}
}

// Get retrieves the value stored under key, if present.
func Get[T any](c Context, k Key[T]) (T, bool) {
	var zero T
	e, ok := c.entries[ctxKey{name: k.name, typeName: k.TypeName()}]
	if !ok {
		return zero, false
	}
	v, ok := e.value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// GetOr retrieves the value stored under key, or def when absent.
func GetOr[T any](c Context, k Key[T], def T) T {
	if v, ok := Get(c, k); ok {
		return v
	}
	return def
}

// With returns a new context with the entry added or replaced.
func With[T any](c Context, k Key[T], v T) Context {
	out := c.clone()
	out.entries[ctxKey{name: k.name, typeName: k.TypeName()}] = contextEntry{
		typeName: k.TypeName(),
		value:    v,
	}
	return out
}

// Without returns a new context with the entry removed. Removing an absent
// key is a no-op.
func Without[T any](c Context, k Key[T]) Context {
	out := c.clone()
	delete(out.entries, ctxKey{name: k.name, typeName: k.TypeName()})
	return out
}

// Merge combines two contexts. Entries from other win on conflicts
// (right-biased). Neither input is modified.
func (c Context) Merge(other Context) Context {
	out := c.clone()
	for k, e := range other.entries {
		out.entries[k] = e
	}
	return out
}

// Keys returns the names of all entries, sorted for deterministic iteration.
// Names may repeat when two keys share a name but differ in type.
func (c Context) Keys() []string {
	names := make([]string, 0, len(c.entries))
	for k := range c.entries {
		names = append(names, k.name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (c Context) Len() int { return len(c.entries) }

// clone copies the backing map. Internal helper for copy-on-write updates.
func (c Context) clone() Context {
	out := Context{entries: make(map[ctxKey]contextEntry, len(c.entries)+1)}
	for k, e := range c.entries {
		out.entries[k] = e
	}
	return out
}

// rawEntries exposes the internal entries for the serializer. Values are
// keyed by name; when two typed keys share a name the one with the
// lexically greater type name wins, which keeps serialization deterministic.
func (c Context) rawEntries() map[string]contextEntry {
	out := make(map[string]contextEntry, len(c.entries))
	for k, e := range c.entries {
		if prev, ok := out[k.name]; ok && prev.typeName > e.typeName {
			continue
		}
		out[k.name] = e
	}
	return out
}

// withRaw stores a decoded entry under its name and type descriptor.
// Used by the serializer when rebuilding a context from a snapshot.
func (c Context) withRaw(name, typeName string, value any) Context {
	out := c.clone()
	out.entries[ctxKey{name: name, typeName: typeName}] = contextEntry{
		typeName: typeName,
		value:    value,
	}
	return out
}
