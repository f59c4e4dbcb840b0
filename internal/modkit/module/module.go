// Package module holds the port registry and the module contract it
// serves. It sits beside modkit rather than inside it so a module can
// import the registry without pulling in the build options
package module

import (
	phttp "backscroll/internal/platform/net/http"
)

// Module mirrors modkit.Module; redeclared here to keep this package
// free of a modkit import
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
