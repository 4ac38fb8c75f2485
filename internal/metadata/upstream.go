package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkgmirror/core/internal/crypto"
	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/retry"
)

// p2Envelope is the raw wire shape of a Composer p2 metadata endpoint
// response, before any sanitization or dist rewriting.
type p2Envelope struct {
	Packages map[string][]map[string]any `json:"packages"`
}

// fetchFromRepo issues an authenticated GET against one Composer
// repository's per-package metadata endpoint (spec.md §4.3 step 3).
func (r *Resolver) fetchFromRepo(ctx context.Context, repo *models.Repository, name string) ([]map[string]any, error) {
	url := strings.TrimRight(repo.URL, "/") + "/p2/" + name + ".json"
	return retry.DoValue(ctx, retry.TopLevel, func(ctx context.Context) ([]map[string]any, error) {
		return r.getVersionEntries(ctx, url, repo, name)
	})
}

// fetchFromPackagist fetches the same package from the well-known public
// registry, unauthenticated (spec.md §4.3 step 3's public-mirroring
// fallback).
func (r *Resolver) fetchFromPackagist(ctx context.Context, name string) ([]map[string]any, error) {
	url := strings.TrimRight(r.packagistBaseURL, "/") + "/p2/" + name + ".json"
	return retry.DoValue(ctx, retry.TopLevel, func(ctx context.Context) ([]map[string]any, error) {
		return r.getVersionEntries(ctx, url, nil, name)
	})
}

func (r *Resolver) getVersionEntries(ctx context.Context, url string, repo *models.Repository, name string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("metadata: build request: %w", err)
	}
	if repo != nil {
		if err := r.applyCredentials(req, repo); err != nil {
			return nil, err
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("metadata: upstream %s returned %d: %s", url, resp.StatusCode, string(body))
	}

	var env p2Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("metadata: decode %s: %w", url, err)
	}
	return env.Packages[name], nil
}

// applyCredentials attaches the repository's decrypted credential as an
// Authorization header, per its credential_kind (spec.md §3's Repository
// entity; encryption scheme in internal/crypto).
func (r *Resolver) applyCredentials(req *http.Request, repo *models.Repository) error {
	if repo.CredentialKind == models.CredentialNone || len(repo.CredentialsCiphertext) == 0 {
		return nil
	}
	plaintext, err := crypto.Decrypt(r.encryptionKey, string(repo.CredentialsCiphertext))
	if err != nil {
		return fmt.Errorf("metadata: decrypt credentials for repo %s: %w", repo.ID, err)
	}

	switch repo.CredentialKind {
	case models.CredentialHTTPBasic:
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(plaintext, &creds); err != nil {
			return fmt.Errorf("metadata: parse http_basic credentials for repo %s: %w", repo.ID, err)
		}
		req.SetBasicAuth(creds.Username, creds.Password)
	case models.CredentialGitToken:
		var creds struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(plaintext, &creds); err != nil {
			return fmt.Errorf("metadata: parse git_token credentials for repo %s: %w", repo.ID, err)
		}
		req.Header.Set("Authorization", "token "+creds.Token)
	}
	return nil
}
