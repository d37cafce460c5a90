// policy.go defines how a target's exit status becomes an oracle verdict.
package campaign

import (
	"slices"
	"time"
)

// StatusKilled is the status reported for targets killed by a signal or, with
// TimeoutIsFailure, by the per-call timeout.
const StatusKilled = -1

// DefaultTimeout bounds a single target execution when a job sets none.
const DefaultTimeout = 30 * time.Second

// VerdictPolicy maps process outcomes to oracle statuses.
type VerdictPolicy struct {
	// FailExitCodes lists the exit codes that reproduce the failure.
	// Empty means every non-zero exit does. Signal deaths report -1 and can be
	// listed explicitly.
	FailExitCodes []int

	// TimeoutIsFailure treats a timed-out execution as reproducing the failure.
	// When false, a timeout aborts minimization with ErrOracleTimeout.
	TimeoutIsFailure bool
}

// DefaultVerdictPolicy returns the policy where any non-zero exit reproduces.
func DefaultVerdictPolicy() VerdictPolicy {
	return VerdictPolicy{}
}

// Status converts an exit code into an oracle status. Zero means the failure
// did not reproduce.
func (p VerdictPolicy) Status(exitCode int) int {
	if exitCode == 0 {
		return 0
	}
	if len(p.FailExitCodes) == 0 || slices.Contains(p.FailExitCodes, exitCode) {
		return exitCode
	}
	return 0
}
