package deployment

// Status is a Deployment's lifecycle state (spec §3 Lifecycle).
type Status string

const (
	StatusInspecting       Status = "INSPECTING"
	StatusInspectingFail   Status = "INSPECTING_FAIL"
	StatusInspectingTimeout Status = "INSPECTING_TIMEOUT"

	StatusBuilding       Status = "BUILDING"
	StatusBuildingFail   Status = "BUILDING_FAIL"
	StatusBuildingTimeout Status = "BUILDING_TIMEOUT"

	StatusDeploying       Status = "DEPLOYING"
	StatusDeployingFail   Status = "DEPLOYING_FAIL"
	StatusDeployingTimeout Status = "DEPLOYING_TIMEOUT"

	StatusRunning    Status = "RUNNING"
	StatusSuperseded Status = "SUPERSEDED"
)

// IsInProgress reports whether s is one of the three in-progress states
// eligible for orphan sweeping.
func (s Status) IsInProgress() bool {
	switch s {
	case StatusInspecting, StatusBuilding, StatusDeploying:
		return true
	default:
		return false
	}
}

// Timeout returns the <state>_TIMEOUT status for an in-progress status.
func (s Status) Timeout() Status {
	switch s {
	case StatusInspecting:
		return StatusInspectingTimeout
	case StatusBuilding:
		return StatusBuildingTimeout
	case StatusDeploying:
		return StatusDeployingTimeout
	default:
		return s
	}
}

// IsTerminal reports whether s is not one of the three in-progress states:
// RUNNING, SUPERSEDED, and every *_FAIL and *_TIMEOUT status are terminal.
func (s Status) IsTerminal() bool {
	return !s.IsInProgress()
}
