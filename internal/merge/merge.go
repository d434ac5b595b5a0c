package merge

import (
	"fmt"
	"maps"
	"reflect"

	"dario.cat/mergo"
	"github.com/mohae/deepcopy"
)

// Copy returns a recursive copy of m. Nested maps and slices are duplicated;
// a nil map yields nil.
func Copy[M ~map[K]V, K comparable, V any](m M) M {
	if m == nil {
		return nil
	}
	cp, ok := deepcopy.Copy(m).(M)
	if !ok {
		// deepcopy preserves the dynamic type, so this only guards against
		// a future library change.
		return maps.Clone(m)
	}
	return cp
}

// Deep merges partial over base and returns a new map.
//
// Nested maps merge key by key, slices are concatenated (base elements
// first) and any other value in partial replaces the value in base. When two
// values cannot be merged structurally (for example slices of different
// element types) the value from partial replaces the base value for that
// top-level key.
func Deep[M ~map[K]V, K comparable, V any](base, partial M) M {
	merged, err := deepMerge(base, partial)
	if err == nil {
		return merged
	}

	// retry key by key so one incompatible value does not flatten the rest
	merged = Copy(base)
	if merged == nil {
		merged = make(M, len(partial))
	}
	for k, v := range partial {
		one, err := deepMerge(M{k: merged[k]}, M{k: v})
		if err != nil {
			merged[k] = Copy(M{k: v})[k]
			continue
		}
		merged[k] = one[k]
	}
	return merged
}

// deepMerge runs mergo over copies of both arguments. mergo writes into
// nested destination maps in place, hence the copies.
func deepMerge[M ~map[K]V, K comparable, V any](base, partial M) (merged M, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("merge panicked: %v", r)
		}
	}()

	merged = Copy(base)
	if merged == nil {
		merged = make(M, len(partial))
	}
	if err := mergo.Merge(&merged, Copy(partial), mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, err
	}
	return merged, nil
}

// Shallow overlays the top-level entries of partial on a copy of base.
// Values are not copied. The result is never nil.
func Shallow[M ~map[K]V, K comparable, V any](base, partial M) M {
	out := make(M, len(base)+len(partial))
	maps.Copy(out, base)
	maps.Copy(out, partial)
	return out
}

// Same reports whether a and b are the same value under shallow comparison:
// == for comparable values, identity for maps and slices. Functions and
// values holding incomparable fields are never the same.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Map:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Func:
		return false
	}

	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}
