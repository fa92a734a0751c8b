package deploy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// HubUploader pushes a folder as a single commit through the Hub HTTP API.
type HubUploader struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *zap.Logger
}

func NewHubUploader(endpoint, token string, client *http.Client, logger *zap.Logger) *HubUploader {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HubUploader{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   client,
		logger:   logger,
	}
}

type whoAmIResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// commitLine is one NDJSON record of a commit request.
type commitLine struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitHeader struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type commitFile struct {
	Content  string `json:"content"`
	Path     string `json:"path"`
	Encoding string `json:"encoding"`
}

type commitResponse struct {
	CommitURL string `json:"commitUrl"`
	CommitOID string `json:"commitOid"`
}

func (h *HubUploader) Authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/api/whoami-v2", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("whoami request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whoami returned status %d: %s", resp.StatusCode, string(body))
	}

	var who whoAmIResponse
	if err := json.NewDecoder(resp.Body).Decode(&who); err != nil {
		return fmt.Errorf("failed to decode whoami response: %w", err)
	}
	h.logger.Info("authenticated", zap.String("user", who.Name))
	return nil
}

// Upload commits every file under dir. Files the Hub routes to the large
// file store are transferred first and referenced from the commit by oid.
func (h *HubUploader) Upload(ctx context.Context, dir string, target Target) (*CommitInfo, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	modes, err := h.preupload(ctx, dir, files, target)
	if err != nil {
		return nil, err
	}
	var lfsFiles []string
	for _, rel := range files {
		if modes[rel] == uploadModeLFS {
			lfsFiles = append(lfsFiles, rel)
		}
	}
	pointers := map[string]lfsPointer{}
	if len(lfsFiles) > 0 {
		if pointers, err = h.uploadLFS(ctx, dir, lfsFiles, target); err != nil {
			return nil, err
		}
	}

	body, err := commitBody(dir, files, pointers, target.Message)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.commitURL(target), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	h.authorize(req)
	req.Header.Set("Content-Type", "application/x-ndjson")

	h.logger.Info("uploading folder", zap.String("dir", dir), zap.Int("files", len(files)),
		zap.Int("lfs_files", len(lfsFiles)), zap.String("repo", target.RepoID))
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commit request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	var result commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode commit response: %w", err)
	}
	return &CommitInfo{URL: result.CommitURL, OID: result.CommitOID}, nil
}

func (h *HubUploader) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+h.token)
}

func (h *HubUploader) commitURL(target Target) string {
	return h.apiURL(target, "commit")
}

// apiURL addresses a per-revision repository operation such as commit or
// preupload.
func (h *HubUploader) apiURL(target Target, op string) string {
	repoType := target.RepoType
	if repoType == "" {
		repoType = "space"
	}
	revision := target.Revision
	if revision == "" {
		revision = "main"
	}
	return fmt.Sprintf("%s/api/%ss/%s/%s/%s", h.endpoint, repoType, target.RepoID, op, url.PathEscape(revision))
}

// repoPath is the repository location relative to the endpoint. Spaces and
// datasets carry a type prefix, models do not.
func repoPath(target Target) string {
	switch target.RepoType {
	case "", "space":
		return "spaces/" + target.RepoID
	case "dataset":
		return "datasets/" + target.RepoID
	default:
		return target.RepoID
	}
}

// commitBody encodes the header line followed by one line per file: an
// lfsFile pointer when the content went to the large file store, inline
// base64 otherwise.
func commitBody(dir string, files []string, pointers map[string]lfsPointer, message string) (io.Reader, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(commitLine{Key: "header", Value: commitHeader{Summary: message}}); err != nil {
		return nil, err
	}
	for _, rel := range files {
		if ptr, ok := pointers[rel]; ok {
			if err := enc.Encode(commitLine{Key: "lfsFile", Value: ptr}); err != nil {
				return nil, err
			}
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		line := commitLine{Key: "file", Value: commitFile{
			Content:  base64.StdEncoding.EncodeToString(content),
			Path:     rel,
			Encoding: "base64",
		}}
		if err := enc.Encode(line); err != nil {
			return nil, err
		}
	}
	return &buf, nil
}
