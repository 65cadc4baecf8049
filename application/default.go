package application

import "sync"

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns a process-wide registry on in-memory stores with the
// canonical configuration. Convenience only; compose explicitly with
// New for anything beyond experiments.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := New()
		if err != nil {
			// Canonical configuration never fails validation.
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}
