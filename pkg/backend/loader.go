package backend

import (
	"context"
	"sync"
)

// Loader loads backends by module path and keeps them for the life of the
// process, so each backend is imported and probed once.
type Loader struct {
	exec  Exec
	load  func(ctx context.Context, module string, x Exec) (Backend, error)
	mu    sync.Mutex
	cache map[string]Backend
}

// NewLoader returns a loader that starts Python backends with x.
func NewLoader(x Exec) *Loader {
	return &Loader{
		exec: x,
		load: func(ctx context.Context, module string, x Exec) (Backend, error) {
			return LoadPython(ctx, module, x)
		},
		cache: make(map[string]Backend),
	}
}

// Static returns a loader that serves fixed backends. Modules not in
// backends fail with BACKEND_UNAVAILABLE.
func Static(backends ...Backend) *Loader {
	byName := make(map[string]Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}
	return &Loader{
		load: func(_ context.Context, module string, _ Exec) (Backend, error) {
			if b, ok := byName[module]; ok {
				return b, nil
			}
			return nil, unavailable(module)
		},
		cache: make(map[string]Backend),
	}
}

// Load returns the backend for module.
func (l *Loader) Load(ctx context.Context, module string) (Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.cache[module]; ok {
		return b, nil
	}
	b, err := l.load(ctx, module, l.exec)
	if err != nil {
		return nil, err
	}
	l.cache[module] = b
	return b, nil
}
