package deployment

import "testing"

func TestStatusIsInProgress(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusInspecting, true},
		{StatusBuilding, true},
		{StatusDeploying, true},
		{StatusRunning, false},
		{StatusSuperseded, false},
		{StatusInspectingFail, false},
		{StatusBuildingTimeout, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsInProgress(); got != tt.want {
			t.Errorf("%s.IsInProgress() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusTimeout(t *testing.T) {
	tests := []struct {
		status Status
		want   Status
	}{
		{StatusInspecting, StatusInspectingTimeout},
		{StatusBuilding, StatusBuildingTimeout},
		{StatusDeploying, StatusDeployingTimeout},
		{StatusRunning, StatusRunning}, // not in-progress: unchanged
	}

	for _, tt := range tests {
		if got := tt.status.Timeout(); got != tt.want {
			t.Errorf("%s.Timeout() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
