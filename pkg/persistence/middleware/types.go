// Package middleware wraps a ports.RunStore to protect what is persisted.
package middleware

import "github.com/nvrdftd/evolve-ai-infra/pkg/ports"

// Middleware allows wrapping a RunStore to add behavior.
type Middleware func(ports.RunStore) ports.RunStore

// Chain applies mws so that the first one sees records first on Save.
func Chain(store ports.RunStore, mws ...Middleware) ports.RunStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
