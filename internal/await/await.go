// Package await provides the single mechanism the harness uses to assert
// anything about the cluster: bounded retry-until-true polling.
//
// Cluster state propagates through consensus in the background, so a fact
// about it is only ever "eventually true within a bound", never "true now".
// Callers express that fact as a Condition and block in Until.
package await

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrConditionTimeout marks errors returned when a condition did not become
// true within its window. Callers attach diagnostic state with
// errors.WithDetail before propagating.
var ErrConditionTimeout = errors.New("condition timed out")

// Condition is a named, read-only check against the system under test.
// Eval must be safe to repeat indefinitely: (true, nil) means the condition
// holds, (false, nil) means not yet, and a non-nil error aborts polling.
type Condition struct {
	Name string
	Eval func(ctx context.Context) (bool, error)
}

// Cond builds a Condition from a name and a check function.
func Cond(name string, eval func(ctx context.Context) (bool, error)) Condition {
	return Condition{Name: name, Eval: eval}
}

// Until evaluates cond immediately and then once per interval until it
// returns true, it returns an error, the timeout elapses, or ctx is
// cancelled. The timeout error is marked ErrConditionTimeout and names the
// condition.
func Until(ctx context.Context, cond Condition, timeout, interval time.Duration) error {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond.Eval(ctx)
		if err != nil {
			return errors.Wrapf(err, "evaluating condition %q", cond.Name)
		}
		if ok {
			return nil
		}
		if time.Since(start) > timeout {
			return errors.Mark(
				errors.Newf("timeout waiting for condition %q to be satisfied in %s", cond.Name, timeout),
				ErrConditionTimeout)
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for condition %q", cond.Name)
		case <-ticker.C:
		}
	}
}
