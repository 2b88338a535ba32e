// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about hook dispatch, file transactions and toolchain
// probes.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Hooks are registered by main, not by libraries, so library packages stay
// free of observability frameworks.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetDispatchHooks(&myDispatchHooks{})
//	    observability.SetTransactionHooks(&myTransactionHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Dispatch().OnHookStart(ctx, "build_wheel")
//	// ... run the hook ...
//	observability.Dispatch().OnHookComplete(ctx, "build_wheel", duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Dispatch Hooks
// =============================================================================

// DispatchHooks receives events from the hook dispatcher.
type DispatchHooks interface {
	// OnHookStart records the start of a build hook call.
	OnHookStart(ctx context.Context, hook string)

	// OnHookComplete records the end of a build hook call.
	OnHookComplete(ctx context.Context, hook string, duration time.Duration, err error)

	// OnBackendCall records a delegated call into the wrapped backend.
	OnBackendCall(ctx context.Context, backend, hook string, duration time.Duration, err error)
}

// =============================================================================
// Transaction Hooks
// =============================================================================

// TransactionHooks receives events from file transactions.
type TransactionHooks interface {
	// OnBackup records that path was backed up before being rewritten.
	OnBackup(ctx context.Context, path string)

	// OnRestore records that path was restored (or removed) at exit.
	OnRestore(ctx context.Context, path string, err error)
}

// =============================================================================
// Probe Hooks
// =============================================================================

// ProbeHooks receives events from toolchain and revision probes.
type ProbeHooks interface {
	// OnProbe records one external tool query, e.g. "nvcc" or "git".
	OnProbe(ctx context.Context, tool string, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopDispatchHooks is a no-op implementation of DispatchHooks.
type NoopDispatchHooks struct{}

func (NoopDispatchHooks) OnHookStart(context.Context, string)                                  {}
func (NoopDispatchHooks) OnHookComplete(context.Context, string, time.Duration, error)         {}
func (NoopDispatchHooks) OnBackendCall(context.Context, string, string, time.Duration, error) {}

// NoopTransactionHooks is a no-op implementation of TransactionHooks.
type NoopTransactionHooks struct{}

func (NoopTransactionHooks) OnBackup(context.Context, string)         {}
func (NoopTransactionHooks) OnRestore(context.Context, string, error) {}

// NoopProbeHooks is a no-op implementation of ProbeHooks.
type NoopProbeHooks struct{}

func (NoopProbeHooks) OnProbe(context.Context, string, time.Duration, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	dispatchHooks    DispatchHooks    = NoopDispatchHooks{}
	transactionHooks TransactionHooks = NoopTransactionHooks{}
	probeHooks       ProbeHooks       = NoopProbeHooks{}
	hooksMu          sync.RWMutex
)

// SetDispatchHooks registers custom dispatch hooks.
// This should be called once at application startup before any hook runs.
func SetDispatchHooks(h DispatchHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		dispatchHooks = h
	}
}

// SetTransactionHooks registers custom transaction hooks.
func SetTransactionHooks(h TransactionHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		transactionHooks = h
	}
}

// SetProbeHooks registers custom probe hooks.
func SetProbeHooks(h ProbeHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		probeHooks = h
	}
}

// Dispatch returns the registered dispatch hooks.
func Dispatch() DispatchHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return dispatchHooks
}

// Transaction returns the registered transaction hooks.
func Transaction() TransactionHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return transactionHooks
}

// Probe returns the registered probe hooks.
func Probe() ProbeHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return probeHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	dispatchHooks = NoopDispatchHooks{}
	transactionHooks = NoopTransactionHooks{}
	probeHooks = NoopProbeHooks{}
}
