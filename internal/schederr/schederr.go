// Package schederr declares the error taxonomy shared by the bucket,
// worker, heteroprio, and hypervisor packages.
package schederr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Callers should compare with errors.Is against these,
// never against the wrapped message text.
var (
	// ErrConfig marks an invalid scheduler configuration: a bad mapping, an
	// inconsistent architecture set, a negative slow factor, a priority out
	// of range. Always surfaced synchronously to the caller that issued the
	// configuration operation, never deferred.
	ErrConfig = errors.New("heteroprio: configuration error")

	// ErrTransientContention marks a lock that was held by another goroutine
	// during a best-effort operation (a steal attempt against a busy
	// victim). Callers should treat it as "try something else", not as a
	// failure worth logging above debug level.
	ErrTransientContention = errors.New("heteroprio: transient contention")

	// ErrResourceExhaustion marks an allocation failure during scheduler
	// initialization (bucket or queue storage). The scheduler is left
	// uninitialized.
	ErrResourceExhaustion = errors.New("heteroprio: resource exhaustion")

	// ErrNoEligibleWorker marks a task submitted to a bucket whose
	// architecture set is not served by any worker currently attached to
	// the context. The task is rejected, not queued.
	ErrNoEligibleWorker = errors.New("heteroprio: no eligible worker")
)

// Config wraps ErrConfig with context-specific detail.
func Config(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// TransientContention wraps ErrTransientContention with context.
func TransientContention(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransientContention, fmt.Sprintf(format, args...))
}

// ResourceExhaustion wraps ErrResourceExhaustion with context.
func ResourceExhaustion(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrResourceExhaustion, fmt.Sprintf(format, args...))
}

// NoEligibleWorker wraps ErrNoEligibleWorker with context.
func NoEligibleWorker(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNoEligibleWorker, fmt.Sprintf(format, args...))
}

// InvariantViolation is raised by Invariant. It is never expected to be
// recovered in production; tests may recover it to assert a specific
// invariant is enforced.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "heteroprio: invariant violation: " + e.Msg
}

// Invariant aborts the calling goroutine with an InvariantViolation. It
// mirrors STARPU_ASSERT_MSG's abort-on-violation contract: a broken
// invariant is a programming bug, not a recoverable runtime condition, and
// must never be silently corrected.
func Invariant(format string, args ...any) {
	panic(&InvariantViolation{Msg: fmt.Sprintf(format, args...)})
}

// InvariantCheck calls Invariant if cond is false.
func InvariantCheck(cond bool, format string, args ...any) {
	if !cond {
		Invariant(format, args...)
	}
}
