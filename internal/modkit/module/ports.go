package module

import (
	"fmt"
	"reflect"
)

// PortSet marks what Ports() returns. Modules define a concrete bundle
// struct (or hand back a single interface) and callers pick values out
// of it with PortsOf
type PortSet = any

// PortsOf extracts a T from a module's Ports() bundle. The bundle itself
// may implement T, or any exported struct field of it may; unexported
// fields are skipped. ok is false when nothing matches
func PortsOf[T any](m Module) (T, bool) {
	var zero T
	bundle := m.Ports()
	if bundle == nil {
		return zero, false
	}
	if v, ok := bundle.(T); ok {
		return v, true
	}
	return fieldAs[T](bundle)
}

// fieldAs scans the exported fields of a struct bundle for one asserting
// to T, in declaration order
func fieldAs[T any](bundle any) (T, bool) {
	var zero T
	rv := reflect.ValueOf(bundle)
	if rv.Kind() != reflect.Struct {
		return zero, false
	}
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanInterface() {
			continue
		}
		if v, ok := f.Interface().(T); ok {
			return v, true
		}
	}
	return zero, false
}

// MustPortsOf is PortsOf for bootstrap paths where a missing port is a
// wiring bug, not a condition to handle
func MustPortsOf[T any](m Module) T {
	v, ok := PortsOf[T](m)
	if !ok {
		panic(fmt.Sprintf("module %s: requested port not found", m.Name()))
	}
	return v
}
