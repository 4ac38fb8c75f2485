package models

// PackageVersion is one (name, version) cached metadata record. The pair
// (Name, Version) is globally unique; ProxyDistURL always points back into
// this system and never leaks upstream addresses to clients.
type PackageVersion struct {
	ID            string `json:"id" db:"id"`
	RepoID        string `json:"repo_id" db:"repo_id"`
	Name          string `json:"name" db:"name"`
	Version       string `json:"version" db:"version"`
	ProxyDistURL  string `json:"proxy_dist_url" db:"proxy_dist_url"`
	SourceDistURL string `json:"source_dist_url,omitempty" db:"source_dist_url"`
	DistReference string `json:"dist_reference,omitempty" db:"dist_reference"`
	MetadataJSON  string `json:"-" db:"metadata_json"`

	Description string `json:"description,omitempty" db:"description"`
	LicenseJSON string `json:"license_json,omitempty" db:"license_json"`
	Type        string `json:"type,omitempty" db:"type"`
	Homepage    string `json:"homepage,omitempty" db:"homepage"`
	ReleasedAt  int64  `json:"released_at,omitempty" db:"released_at"`
	CreatedAt   int64  `json:"created_at" db:"created_at"`
}
