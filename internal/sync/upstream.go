package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkgmirror/core/internal/crypto"
	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/retry"
)

// fetchJSON GETs url (optionally authenticated against repo's decrypted
// credentials) and decodes the JSON body into out, retrying per profile's
// bounded backoff (spec.md §4.5 "Retries"). repo may be nil for an
// unauthenticated host (e.g. the GitHub API with no configured token).
func (e *Engine) fetchJSON(ctx context.Context, url string, repo *models.Repository, profile retry.Profile, out any) error {
	_, err := retry.DoValue(ctx, profile, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.getJSON(ctx, url, repo, out)
	})
	return err
}

func (e *Engine) getJSON(ctx context.Context, url string, repo *models.Repository, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("sync: build request: %w", err)
	}
	if repo != nil {
		if err := e.applyCredentials(req, repo); err != nil {
			return err
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sync: upstream %s returned %d: %s", url, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// fetchRaw GETs url and returns its raw body, same auth/retry treatment as
// fetchJSON, for non-JSON payloads (a composer.json file's raw bytes).
func (e *Engine) fetchRaw(ctx context.Context, url string, repo *models.Repository) ([]byte, error) {
	return retry.DoValue(ctx, retry.PerFile, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("sync: build request: %w", err)
		}
		if repo != nil {
			if err := e.applyCredentials(req, repo); err != nil {
				return nil, err
			}
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("sync: fetch %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("sync: raw fetch %s returned %d", url, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
}

// applyCredentials attaches the repository's decrypted credential as an
// Authorization header, per its credential_kind. Duplicated from
// internal/metadata's and internal/artifact's identical helper rather than
// shared: each domain package owns its own upstream round trip.
func (e *Engine) applyCredentials(req *http.Request, repo *models.Repository) error {
	if repo.CredentialKind == models.CredentialNone || len(repo.CredentialsCiphertext) == 0 {
		return nil
	}
	plaintext, err := crypto.Decrypt(e.encryptionKey, string(repo.CredentialsCiphertext))
	if err != nil {
		return fmt.Errorf("sync: decrypt credentials for repo %s: %w", repo.ID, err)
	}

	switch repo.CredentialKind {
	case models.CredentialHTTPBasic:
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(plaintext, &creds); err != nil {
			return fmt.Errorf("sync: parse http_basic credentials for repo %s: %w", repo.ID, err)
		}
		req.SetBasicAuth(creds.Username, creds.Password)
	case models.CredentialGitToken:
		var creds struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(plaintext, &creds); err != nil {
			return fmt.Errorf("sync: parse git_token credentials for repo %s: %w", repo.ID, err)
		}
		req.Header.Set("Authorization", "token "+creds.Token)
	}
	return nil
}
