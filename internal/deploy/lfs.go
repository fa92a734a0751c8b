package deploy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	uploadModeLFS     = "lfs"
	uploadModeRegular = "regular"

	lfsMediaType = "application/vnd.git-lfs+json"
	sampleSize   = 512
)

type preuploadFile struct {
	Path   string `json:"path"`
	Sample string `json:"sample"`
	Size   int64  `json:"size"`
}

type preuploadRequest struct {
	Files []preuploadFile `json:"files"`
}

type preuploadResponse struct {
	Files []struct {
		Path       string `json:"path"`
		UploadMode string `json:"uploadMode"`
	} `json:"files"`
}

// lfsPointer identifies file content stored in the large file store.
type lfsPointer struct {
	Path string `json:"path"`
	Algo string `json:"algo"`
	OID  string `json:"oid"`
	Size int64  `json:"size"`
}

type lfsObject struct {
	OID  string `json:"oid"`
	Size int64  `json:"size"`
}

type lfsBatchRequest struct {
	Operation string      `json:"operation"`
	Transfers []string    `json:"transfers"`
	Objects   []lfsObject `json:"objects"`
	HashAlgo  string      `json:"hash_algo"`
}

type lfsAction struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header"`
}

type lfsBatchResponse struct {
	Objects []struct {
		OID     string               `json:"oid"`
		Size    int64                `json:"size"`
		Actions map[string]lfsAction `json:"actions"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"objects"`
}

// preupload asks the Hub how each file must be committed. Files the Hub
// does not mention are sent inline.
func (h *HubUploader) preupload(ctx context.Context, dir string, files []string, target Target) (map[string]string, error) {
	payload := preuploadRequest{Files: make([]preuploadFile, 0, len(files))}
	for _, rel := range files {
		sample, size, err := readSample(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		payload.Files = append(payload.Files, preuploadFile{
			Path:   rel,
			Sample: base64.StdEncoding.EncodeToString(sample),
			Size:   size,
		})
	}

	var result preuploadResponse
	if err := h.postJSON(ctx, h.apiURL(target, "preupload"), "application/json", payload, &result); err != nil {
		return nil, fmt.Errorf("preupload: %w", err)
	}

	modes := make(map[string]string, len(files))
	for _, rel := range files {
		modes[rel] = uploadModeRegular
	}
	for _, f := range result.Files {
		if f.UploadMode == uploadModeLFS {
			modes[f.Path] = uploadModeLFS
		}
	}
	return modes, nil
}

// uploadLFS hashes the given files and transfers any object the store does
// not already hold.
func (h *HubUploader) uploadLFS(ctx context.Context, dir string, files []string, target Target) (map[string]lfsPointer, error) {
	pointers := make(map[string]lfsPointer, len(files))
	byOID := make(map[string]string, len(files))
	objects := make([]lfsObject, 0, len(files))
	for _, rel := range files {
		oid, size, err := hashFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		pointers[rel] = lfsPointer{Path: rel, Algo: "sha256", OID: oid, Size: size}
		if _, dup := byOID[oid]; !dup {
			objects = append(objects, lfsObject{OID: oid, Size: size})
		}
		byOID[oid] = rel
	}

	batch := lfsBatchRequest{
		Operation: "upload",
		Transfers: []string{"basic"},
		Objects:   objects,
		HashAlgo:  "sha256",
	}
	var result lfsBatchResponse
	if err := h.postJSON(ctx, h.lfsBatchURL(target), lfsMediaType, batch, &result); err != nil {
		return nil, fmt.Errorf("lfs batch: %w", err)
	}

	for _, obj := range result.Objects {
		rel, ok := byOID[obj.OID]
		if !ok {
			return nil, fmt.Errorf("lfs batch returned unknown object %s", obj.OID)
		}
		if obj.Error != nil {
			return nil, fmt.Errorf("lfs object %s: %d %s", rel, obj.Error.Code, obj.Error.Message)
		}
		upload, ok := obj.Actions["upload"]
		if !ok {
			h.logger.Debug("lfs object already stored", zap.String("path", rel))
			continue
		}
		if err := h.putObject(ctx, filepath.Join(dir, filepath.FromSlash(rel)), obj.Size, upload); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", rel, err)
		}
		if verify, ok := obj.Actions["verify"]; ok {
			if err := h.verifyObject(ctx, lfsObject{OID: obj.OID, Size: obj.Size}, verify); err != nil {
				return nil, fmt.Errorf("failed to verify %s: %w", rel, err)
			}
		}
		h.logger.Info("uploaded lfs object", zap.String("path", rel), zap.Int64("size", obj.Size))
	}
	return pointers, nil
}

func (h *HubUploader) putObject(ctx context.Context, path string, size int64, action lfsAction) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, action.Href, f)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = size
	for k, v := range action.Header {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (h *HubUploader) verifyObject(ctx context.Context, obj lfsObject, action lfsAction) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.Href, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	h.authorize(req)
	req.Header.Set("Content-Type", lfsMediaType)
	for k, v := range action.Header {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (h *HubUploader) postJSON(ctx context.Context, endpoint, mediaType string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	h.authorize(req)
	req.Header.Set("Content-Type", mediaType)
	req.Header.Set("Accept", mediaType)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (h *HubUploader) lfsBatchURL(target Target) string {
	return fmt.Sprintf("%s/%s.git/info/lfs/objects/batch", h.endpoint, repoPath(target))
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func readSample(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	sample := make([]byte, sampleSize)
	n, err := io.ReadFull(f, sample)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, 0, err
	}
	return sample[:n], info.Size(), nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	sum := sha256.New()
	n, err := io.Copy(sum, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(sum.Sum(nil)), n, nil
}
