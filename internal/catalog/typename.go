package catalog

import (
	"reflect"
	"strings"
	"sync"
)

// typeNameCache memoizes TypeName by reflect.Type.
var typeNameCache sync.Map // key: reflect.Type, val: string

// TypeName returns the canonical name of t: the full import path, a dot,
// and the declared name, with pointers dereferenced and generic
// instantiation parameters stripped. Unnamed types yield "".
//
// Example: *fruit.Apple -> "github.com/roach88/atplug/internal/example/fruit.Apple"
func TypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if v, ok := typeNameCache.Load(t); ok {
		return v.(string)
	}

	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	name := ""
	if base.Name() != "" && base.PkgPath() != "" {
		name = base.PkgPath() + "." + stripTypeParams(base.Name())
	}
	typeNameCache.Store(t, name)
	return name
}

// TypeNameOf returns the canonical name of T.
func TypeNameOf[T any]() string {
	return TypeName(reflect.TypeFor[T]())
}

// NameOf returns the canonical name of v's dynamic type.
func NameOf(v any) string {
	if v == nil {
		return ""
	}
	return TypeName(reflect.TypeOf(v))
}

// stripTypeParams turns "Box[int]" into "Box".
func stripTypeParams(name string) string {
	if i := strings.IndexByte(name, '['); i >= 0 {
		return name[:i]
	}
	return name
}
