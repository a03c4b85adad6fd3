// Package policies links every built-in policy into the registry.
// Import it for side effects.
package policies

import (
	_ "github.com/vovakirdan/pixelpilot/internal/policies/noop"
	_ "github.com/vovakirdan/pixelpilot/internal/policies/random"
	_ "github.com/vovakirdan/pixelpilot/internal/policies/replay"
	_ "github.com/vovakirdan/pixelpilot/internal/policies/scripted"
)
