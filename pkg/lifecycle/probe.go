package lifecycle

// Probe reasons reported to the orchestrator.
const (
	ReasonReady           = "SERVER_IS_READY"
	ReasonNotReady        = "SERVER_IS_NOT_READY"
	ReasonShuttingDown    = "SERVER_IS_SHUTTING_DOWN"
	ReasonNotShuttingDown = "SERVER_IS_NOT_SHUTTING_DOWN"
)

// Result is the outcome of a probe check.
type Result struct {
	OK     bool
	Reason string
}

// StateReader is what the probe predicates look at.
type StateReader interface {
	Ready() bool
	IsShuttingDown() bool
}

// CheckHealth succeeds when ready and not shutting down.
func CheckHealth(s StateReader) Result {
	if s.IsShuttingDown() {
		return Result{Reason: ReasonShuttingDown}
	}
	if !s.Ready() {
		return Result{Reason: ReasonNotReady}
	}
	return Result{OK: true, Reason: ReasonReady}
}

// CheckLive succeeds until shutdown starts.
func CheckLive(s StateReader) Result {
	if s.IsShuttingDown() {
		return Result{Reason: ReasonShuttingDown}
	}
	return Result{OK: true, Reason: ReasonNotShuttingDown}
}

// CheckReady has the same semantics as CheckHealth.
func CheckReady(s StateReader) Result {
	return CheckHealth(s)
}
