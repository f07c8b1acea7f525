package actor

import "github.com/lattice-run/lattice/internal/logutil"

// log is the package-level logger for the actor runtime, defaulted to
// discarding everything until UseLogger wires up a real sink. Matches the
// per-subsystem logging convention used across lattice.
var log = logutil.Disabled

// UseLogger sets the subsystem logger used by the actor package. Called once
// from the daemon's main package during startup.
func UseLogger(logger logutil.Logger) {
	log = logger
}
