package database

import "testing"

func TestReconcileState(t *testing.T) {
	tests := []struct {
		name    string
		running int32
		desired int32
		want    State
	}{
		{"running equals desired", 2, 2, StateAvailable},
		{"running below desired", 1, 2, StateCreating},
		{"desired zero", 0, 0, StateStopped},
		{"running above desired", 3, 2, StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconcileState(tt.running, tt.desired); got != tt.want {
				t.Errorf("reconcileState(%d, %d) = %s, want %s", tt.running, tt.desired, got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("12345678-abcd"); got != "12345678" {
		t.Errorf("shortID() = %q, want %q", got, "12345678")
	}
	if got := shortID("short"); got != "short" {
		t.Errorf("shortID() = %q, want %q", got, "short")
	}
}
