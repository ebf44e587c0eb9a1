// Package clock abstracts time for subscription-expiry evaluation and tests.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock returns the current time. Services evaluate subscription expiry
// against an injected Clock so tests can control "now".
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystem returns a Clock backed by the wall clock (UTC).
func NewSystem() Clock { return systemClock{} }

// Module wires the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
