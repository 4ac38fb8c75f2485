package models

// Artifact is the bytes associated with a Package Version. At most one row
// exists per (RepoID, Name, Version).
type Artifact struct {
	ID               string `json:"id" db:"id"`
	RepoID           string `json:"repo_id" db:"repo_id"`
	Name             string `json:"name" db:"name"`
	Version          string `json:"version" db:"version"`
	StorageKey       string `json:"storage_key" db:"storage_key"`
	SizeBytes        int64  `json:"size_bytes,omitempty" db:"size_bytes"`
	DownloadCount    int64  `json:"download_count" db:"download_count"`
	LastDownloadedAt int64  `json:"last_downloaded_at,omitempty" db:"last_downloaded_at"`
	CreatedAt        int64  `json:"created_at" db:"created_at"`
}
