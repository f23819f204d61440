// Package service implements the stable per-(user,repo) Service identity
// (spec §3) and the read-side Read Helpers (spec §4.10/§6).
package service

import "time"

// Service is the stable identity of a deployed application for a
// user-repository pair. Request Intake creates the row (deployments reference
// it), so a service exists from its first deployment request whether or not
// any deployment reaches RUNNING; activeDeploymentId and serviceEndpoint are
// set on each supersession; never deleted by the core.
type Service struct {
	ServiceID           string    `json:"serviceId"`
	UserID              string    `json:"userId"`
	ServiceName         string    `json:"serviceName"`
	ActiveDeploymentID  string    `json:"activeDeploymentId,omitempty"`
	ServiceEndpoint     string    `json:"serviceEndpoint,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}
