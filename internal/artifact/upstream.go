package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v5"

	"github.com/pkgmirror/core/internal/crypto"
	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/retry"
)

// p2Envelope mirrors the Composer p2 metadata wire shape (internal/metadata
// decodes the same structure independently; each caller owns its own HTTP
// round trip rather than sharing a client across unrelated domain concerns).
type p2Envelope struct {
	Packages map[string][]map[string]any `json:"packages"`
}

// isHTTPURL reports whether url is fetchable directly (spec.md §4.4:
// "Requires the URL to be http/https; otherwise 404").
func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// fetchBytes downloads url's full body, retrying transient failures up to
// the PerFile budget and giving up immediately (no retry) on a response that
// classifies as permanent: auth rejection, not-found, or any other non-200.
func (s *Server) fetchBytes(ctx context.Context, rawURL string, repo *models.Repository) ([]byte, error) {
	if !isHTTPURL(rawURL) {
		return nil, ErrNotFound
	}
	return retry.DoValue(ctx, retry.PerFile, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if repo != nil {
			if err := applyCredentials(req, repo, s.encryptionKey); err != nil {
				return nil, backoff.Permanent(err)
			}
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err // transient: network error, retry
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			return io.ReadAll(resp.Body)
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, backoff.Permanent(ErrUnauthorized)
		case http.StatusNotFound:
			return nil, backoff.Permanent(ErrNotFound)
		default:
			return nil, backoff.Permanent(fmt.Errorf("%w: status %d from %s", ErrUpstream, resp.StatusCode, rawURL))
		}
	})
}

// findDistURL fetches baseURL's per-package metadata (a repository's own
// endpoint, or the public mirror when repo is nil) and returns the dist URL
// of the first candidate version present, used for the on-demand discovery
// path when neither an Artifact nor a PackageVersion row exists yet.
func (s *Server) findDistURL(ctx context.Context, repo *models.Repository, baseURL, name string, candidates []string) (distURL, matchedVersion string, err error) {
	reqURL := strings.TrimRight(baseURL, "/") + "/p2/" + name + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("artifact: build discovery request: %w", err)
	}
	if repo != nil {
		if err := applyCredentials(req, repo, s.encryptionKey); err != nil {
			return "", "", err
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("artifact: discovery fetch %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: discovery %s returned %d", ErrUpstream, reqURL, resp.StatusCode)
	}

	var env p2Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", "", fmt.Errorf("artifact: decode discovery %s: %w", reqURL, err)
	}

	entries := env.Packages[name]
	for _, candidate := range candidates {
		for _, entry := range entries {
			v, _ := entry["version"].(string)
			if v != candidate {
				continue
			}
			dist, ok := entry["dist"].(map[string]any)
			if !ok {
				continue
			}
			u, ok := dist["url"].(string)
			if ok && u != "" {
				return u, candidate, nil
			}
		}
	}
	return "", "", nil
}

// applyCredentials attaches a repository's decrypted credential as an
// Authorization header, mirroring internal/metadata's upstream client (each
// domain package owns its own HTTP round trip against the Repository port
// rather than sharing a client instance across unrelated concerns).
func applyCredentials(req *http.Request, repo *models.Repository, encryptionKey string) error {
	if repo.CredentialKind == models.CredentialNone || len(repo.CredentialsCiphertext) == 0 {
		return nil
	}
	plaintext, err := crypto.Decrypt(encryptionKey, string(repo.CredentialsCiphertext))
	if err != nil {
		return fmt.Errorf("artifact: decrypt credentials for repo %s: %w", repo.ID, err)
	}

	switch repo.CredentialKind {
	case models.CredentialHTTPBasic:
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(plaintext, &creds); err != nil {
			return fmt.Errorf("artifact: parse http_basic credentials for repo %s: %w", repo.ID, err)
		}
		req.SetBasicAuth(creds.Username, creds.Password)
	case models.CredentialGitToken:
		var creds struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(plaintext, &creds); err != nil {
			return fmt.Errorf("artifact: parse git_token credentials for repo %s: %w", repo.ID, err)
		}
		req.Header.Set("Authorization", "token "+creds.Token)
	}
	return nil
}

// IsTimeout reports whether err is the upstream-deadline failure spec.md §5
// says must surface to the client as 504, so the HTTP layer can distinguish
// it from a generic 502 without importing net here itself.
func IsTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	for e := err; e != nil; {
		if as, ok := e.(interface{ Timeout() bool }); ok {
			netErr = as
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return netErr != nil && netErr.Timeout()
}
