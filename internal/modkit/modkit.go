// Package modkit provides the composition seams modules share: the
// module contract, bootstrap deps, and functional build options
package modkit

import (
	phttp "backscroll/internal/platform/net/http"
)

// Module is what main composes: something that names itself, mounts its
// HTTP surface, and exposes a port bundle for siblings to pull from.
// Kept small on purpose; anything richer belongs to the module itself
type Module interface {
	// MountRoutes attaches the module's routes to r
	MountRoutes(r phttp.Router)
	// Ports exposes the module's port bundle for cross wiring
	Ports() any
	// Name identifies the module in the registry and in logs
	Name() string
}

// Builder is the constructor convention modules follow:
// New assembles a Module from shared deps plus functional options
type Builder func(Deps, ...Option) Module
