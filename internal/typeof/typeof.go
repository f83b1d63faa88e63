// Package typeof classifies dynamic values for call sites that accept loosely
// typed arguments.
package typeof

import "reflect"

// IsFunc reports whether v is a non-nil function value.
func IsFunc(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Func && !rv.IsNil()
}

// IsString reports whether v's dynamic kind is string. Named string types count.
func IsString(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Kind() == reflect.String
}

// IsObject reports whether v is a structured value: a string-keyed map, a
// struct, or a non-nil pointer to a struct.
func IsObject(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	case reflect.Struct:
		return true
	case reflect.Pointer:
		return !rv.IsNil() && rv.Elem().Kind() == reflect.Struct
	}
	return false
}

// IsDefined reports whether v carries a value. Untyped nil and nil
// pointers, maps, slices, funcs, channels and interfaces are undefined.
func IsDefined(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
