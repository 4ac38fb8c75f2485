package models

import "strings"

// SourceKind distinguishes the upstream protocol a Repository speaks.
type SourceKind string

const (
	SourceGit      SourceKind = "git"
	SourceComposer SourceKind = "composer"
)

// CredentialKind selects how credentials_ciphertext should be interpreted.
type CredentialKind string

const (
	CredentialNone      CredentialKind = "none"
	CredentialHTTPBasic CredentialKind = "http_basic"
	CredentialGitToken  CredentialKind = "git_token"
)

// RepositoryStatus tracks the sync lifecycle.
type RepositoryStatus string

const (
	RepoPending RepositoryStatus = "pending"
	RepoSyncing RepositoryStatus = "syncing"
	RepoActive  RepositoryStatus = "active"
	RepoError   RepositoryStatus = "error"
)

// PackagistRepoID is the well-known singleton id for the public registry.
// It is auto-created on first use and may not be deleted or edited through
// external interfaces.
const PackagistRepoID = "packagist"

// Repository is a configured upstream package source.
type Repository struct {
	ID                    string           `json:"id" db:"id"`
	URL                   string           `json:"url" db:"url"`
	SourceKind            SourceKind       `json:"source_kind" db:"source_kind"`
	CredentialKind        CredentialKind   `json:"credential_kind" db:"credential_kind"`
	CredentialsCiphertext []byte           `json:"-" db:"credentials_ciphertext"`
	Filter                string           `json:"filter,omitempty" db:"filter"`
	Status                RepositoryStatus `json:"status" db:"status"`
	ErrorMessage          string           `json:"error_message,omitempty" db:"error_message"`
	LastSyncedAt          int64            `json:"last_synced_at,omitempty" db:"last_synced_at"`
	CreatedAt             int64            `json:"created_at" db:"created_at"`
}

// IsProtected reports whether this repository is the packagist singleton,
// which may not be deleted or edited through external interfaces.
func (r *Repository) IsProtected() bool {
	return r != nil && r.ID == PackagistRepoID
}

// FilterNames splits the optional comma-separated package filter list.
func (r *Repository) FilterNames() []string {
	if r.Filter == "" {
		return nil
	}
	var names []string
	for _, part := range strings.Split(r.Filter, ",") {
		if p := strings.TrimSpace(part); p != "" {
			names = append(names, p)
		}
	}
	return names
}
