// Package installation manages the hosting provider's grant to act on a set
// of repositories (spec §3 Installation entity).
package installation

import "time"

// Installation cross-references a user with a GitHub App installation id
// and the account it was installed on.
type Installation struct {
	InstallationID int64     `json:"installationId"`
	UserID         string    `json:"userId"`
	AccountLogin   string    `json:"accountLogin"`
	CreatedAt      time.Time `json:"createdAt"`
}
