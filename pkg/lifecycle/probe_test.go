package lifecycle

import "testing"

type staticState struct {
	ready, shuttingDown bool
}

func (s staticState) Ready() bool          { return s.ready }
func (s staticState) IsShuttingDown() bool { return s.shuttingDown }

func TestProbePredicates(t *testing.T) {
	tests := []struct {
		name   string
		state  staticState
		health Result
		live   Result
	}{
		{
			name:   "starting",
			state:  staticState{},
			health: Result{Reason: ReasonNotReady},
			live:   Result{OK: true, Reason: ReasonNotShuttingDown},
		},
		{
			name:   "ready",
			state:  staticState{ready: true},
			health: Result{OK: true, Reason: ReasonReady},
			live:   Result{OK: true, Reason: ReasonNotShuttingDown},
		},
		{
			name:   "shutting down while ready",
			state:  staticState{ready: true, shuttingDown: true},
			health: Result{Reason: ReasonShuttingDown},
			live:   Result{Reason: ReasonShuttingDown},
		},
		{
			name:   "shutting down before ready",
			state:  staticState{shuttingDown: true},
			health: Result{Reason: ReasonShuttingDown},
			live:   Result{Reason: ReasonShuttingDown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckHealth(tt.state); got != tt.health {
				t.Errorf("health: got %+v, want %+v", got, tt.health)
			}
			if got := CheckReady(tt.state); got != tt.health {
				t.Errorf("ready: got %+v, want %+v", got, tt.health)
			}
			if got := CheckLive(tt.state); got != tt.live {
				t.Errorf("live: got %+v, want %+v", got, tt.live)
			}
		})
	}
}

func TestDetectOrchestrator(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "")
	if DetectOrchestrator() {
		t.Fatal("expected no orchestrator without KUBERNETES_SERVICE_HOST")
	}
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")
	if !DetectOrchestrator() {
		t.Fatal("expected orchestrator with KUBERNETES_SERVICE_HOST set")
	}
}
