package deploy

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drugclassifier/internal/config"
	"drugclassifier/internal/testutil"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestReadEnv(t *testing.T) {
	tests := []struct {
		name        string
		vars        map[string]string
		wantToken   bool
		wantRepo    bool
		wantMissing bool
	}{
		{"both set", map[string]string{"HF": "tok", "HF_REPO": "user/space"}, false, false, false},
		{"token missing", map[string]string{"HF_REPO": "user/space"}, true, false, true},
		{"repo missing", map[string]string{"HF": "tok"}, false, true, true},
		{"both missing", map[string]string{}, true, true, true},
		{"blank token", map[string]string{"HF": "  ", "HF_REPO": "user/space"}, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ReadEnv(lookupFrom(tt.vars), "HF", "HF_REPO")
			assert.Equal(t, tt.wantToken, errors.Is(err, ErrMissingToken))
			assert.Equal(t, tt.wantRepo, errors.Is(err, ErrMissingRepo))
			assert.Equal(t, tt.wantMissing, IsMissingEnv(err))
			if err == nil {
				assert.Equal(t, Env{Token: "tok", Repo: "user/space"}, env)
			}
		})
	}
}

func TestReadEnvUsesProcessEnvironment(t *testing.T) {
	t.Setenv("DRUGCLF_TEST_TOKEN", "tok")
	t.Setenv("DRUGCLF_TEST_REPO", "user/space")

	env, err := ReadEnv(nil, "DRUGCLF_TEST_TOKEN", "DRUGCLF_TEST_REPO")
	require.NoError(t, err)
	assert.Equal(t, "user/space", env.Repo)
}

func TestStage(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "App")
	testutil.WriteFile(t, app, "README.md", "---\nsdk: docker\n---\n")
	testutil.WriteFile(t, app, "Dockerfile", "FROM scratch\n")
	testutil.WriteFile(t, app, ".git/HEAD", "ref: refs/heads/main\n")
	model := filepath.Join(root, "Model")
	testutil.WriteFile(t, model, "drug_pipeline.gob", "model-v2")

	staging := filepath.Join(root, "hf_space")
	testutil.WriteFile(t, staging, "Model/drug_pipeline.gob", "model-v1")
	testutil.WriteFile(t, staging, "extra.txt", "left alone")

	files, err := Stage(staging, []config.StageSource{
		{From: app, To: "."},
		{From: model, To: "Model"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dockerfile", "Model/drug_pipeline.gob", "README.md", "extra.txt"}, files)

	b, err := os.ReadFile(filepath.Join(staging, "Model", "drug_pipeline.gob"))
	require.NoError(t, err)
	assert.Equal(t, "model-v2", string(b))
	assert.NoDirExists(t, filepath.Join(staging, ".git"))
}

func TestStageMissingSource(t *testing.T) {
	root := t.TempDir()
	_, err := Stage(filepath.Join(root, "out"), []config.StageSource{{From: filepath.Join(root, "absent"), To: "."}})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStageSingleFile(t *testing.T) {
	root := t.TempDir()
	src := testutil.WriteFile(t, root, "metrics.txt", "Accuracy = 1.0, F1 Score = 1.0")
	files, err := Stage(filepath.Join(root, "out"), []config.StageSource{{From: src, To: "Results/metrics.txt"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Results/metrics.txt"}, files)
}

// hubServer fakes the whoami, preupload, commit and LFS endpoints. Files
// whose sample holds a NUL byte are routed to LFS; stored objects are kept
// by oid.
type hubServer struct {
	*httptest.Server
	token    string
	paths    []string
	commits  [][]byte
	objects  map[string][]byte
	verified []string
}

func newHubServer(t *testing.T, token string) *hubServer {
	h := &hubServer{token: token, objects: map[string][]byte{}}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.paths = append(h.paths, r.Method+" "+r.URL.Path)
		if strings.HasPrefix(r.URL.Path, "/lfs-storage/") {
			assert.Equal(t, "signed", r.Header.Get("X-Amz-Signature"))
			body, _ := io.ReadAll(r.Body)
			h.objects[strings.TrimPrefix(r.URL.Path, "/lfs-storage/")] = body
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+h.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/whoami-v2":
			_ = json.NewEncoder(w).Encode(map[string]string{"name": "user", "type": "user"})
		case "/api/spaces/user/space/preupload/main":
			var req preuploadRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			var resp preuploadResponse
			for _, f := range req.Files {
				sample, err := base64.StdEncoding.DecodeString(f.Sample)
				assert.NoError(t, err)
				mode := uploadModeRegular
				if bytes.IndexByte(sample, 0) >= 0 {
					mode = uploadModeLFS
				}
				resp.Files = append(resp.Files, struct {
					Path       string `json:"path"`
					UploadMode string `json:"uploadMode"`
				}{f.Path, mode})
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "/spaces/user/space.git/info/lfs/objects/batch":
			assert.Equal(t, lfsMediaType, r.Header.Get("Content-Type"))
			var req lfsBatchRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "upload", req.Operation)
			objects := make([]map[string]any, 0, len(req.Objects))
			for _, obj := range req.Objects {
				entry := map[string]any{"oid": obj.OID, "size": obj.Size}
				if _, ok := h.objects[obj.OID]; !ok {
					entry["actions"] = map[string]any{
						"upload": map[string]any{
							"href":   h.URL + "/lfs-storage/" + obj.OID,
							"header": map[string]string{"X-Amz-Signature": "signed"},
						},
						"verify": map[string]any{"href": h.URL + "/lfs-verify"},
					}
				}
				objects = append(objects, entry)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"transfer": "basic", "objects": objects})
		case "/lfs-verify":
			var obj lfsObject
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&obj))
			if _, ok := h.objects[obj.OID]; !ok {
				http.NotFound(w, r)
				return
			}
			h.verified = append(h.verified, obj.OID)
		case "/api/spaces/user/space/commit/main":
			assert.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			h.commits = append(h.commits, body)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"commitUrl": h.URL + "/spaces/user/space/commit/abc123",
				"commitOid": "abc123",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(h.Close)
	return h
}

func commitLines(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestHubUploaderAuthenticate(t *testing.T) {
	srv := newHubServer(t, "good")

	assert.NoError(t, NewHubUploader(srv.URL, "good", srv.Client(), nil).Authenticate(context.Background()))

	err := NewHubUploader(srv.URL, "bad", srv.Client(), nil).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHubUploaderUpload(t *testing.T) {
	srv := newHubServer(t, "good")
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "README.md", "# Drug Classification")
	testutil.WriteFile(t, dir, "app.py", "print('hi')")

	info, err := NewHubUploader(srv.URL+"/", "good", srv.Client(), nil).Upload(context.Background(), dir, Target{
		RepoID:  "user/space",
		Message: "Update app + model",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", info.OID)
	assert.Equal(t, srv.URL+"/spaces/user/space/commit/abc123", info.URL)
	assert.False(t, info.NoChanges)

	require.Len(t, srv.commits, 1)
	lines := commitLines(t, srv.commits[0])
	require.Len(t, lines, 3)

	assert.Equal(t, "header", lines[0]["key"])
	assert.Equal(t, "Update app + model", lines[0]["value"].(map[string]any)["summary"])

	file := lines[1]["value"].(map[string]any)
	assert.Equal(t, "file", lines[1]["key"])
	assert.Equal(t, "README.md", file["path"])
	assert.Equal(t, "base64", file["encoding"])
	content, err := base64.StdEncoding.DecodeString(file["content"].(string))
	require.NoError(t, err)
	assert.Equal(t, "# Drug Classification", string(content))

	assert.Equal(t, "app.py", lines[2]["value"].(map[string]any)["path"])
	assert.Empty(t, srv.objects, "text files never touch the large file store")
}

func TestHubUploaderUploadsBinaryFilesThroughLFS(t *testing.T) {
	srv := newHubServer(t, "good")
	dir := t.TempDir()
	model := "\x00\x01binary model"
	testutil.WriteFile(t, dir, "README.md", "# Drug Classification")
	testutil.WriteFile(t, dir, "Model/drug_pipeline.gob", model)
	testutil.WriteFile(t, dir, "app", "\x7fELF\x00\x00")

	sum := sha256.Sum256([]byte(model))
	oid := hex.EncodeToString(sum[:])

	uploader := NewHubUploader(srv.URL, "good", srv.Client(), nil)
	_, err := uploader.Upload(context.Background(), dir, Target{RepoID: "user/space", Message: "deploy"})
	require.NoError(t, err)

	assert.Equal(t, []byte(model), srv.objects[oid])
	assert.Len(t, srv.objects, 2)
	assert.Len(t, srv.verified, 2)

	lines := commitLines(t, srv.commits[0])
	require.Len(t, lines, 4)
	keys := map[string]string{}
	for _, line := range lines[1:] {
		keys[line["value"].(map[string]any)["path"].(string)] = line["key"].(string)
	}
	assert.Equal(t, map[string]string{
		"Model/drug_pipeline.gob": "lfsFile",
		"README.md":               "file",
		"app":                     "lfsFile",
	}, keys)

	ptr := lines[1]["value"].(map[string]any)
	assert.Equal(t, "Model/drug_pipeline.gob", ptr["path"])
	assert.Equal(t, "sha256", ptr["algo"])
	assert.Equal(t, oid, ptr["oid"])
	assert.Equal(t, float64(len(model)), ptr["size"])
	assert.NotContains(t, ptr, "content")

	// A second deploy of the same content skips the transfer.
	srv.paths = nil
	_, err = uploader.Upload(context.Background(), dir, Target{RepoID: "user/space", Message: "deploy"})
	require.NoError(t, err)
	assert.NotContains(t, srv.paths, "PUT /lfs-storage/"+oid)
	assert.Len(t, srv.verified, 2)
	assert.Equal(t, "lfsFile", commitLines(t, srv.commits[1])[1]["key"])
}

func TestHubUploaderUploadRejected(t *testing.T) {
	srv := newHubServer(t, "good")
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "README.md", "x")

	_, err := NewHubUploader(srv.URL, "bad", srv.Client(), nil).Upload(context.Background(), dir, Target{RepoID: "user/space"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewHubUploader(srv.URL, "good", srv.Client(), nil).Upload(context.Background(), dir, Target{RepoID: "other/space"})
	assert.ErrorContains(t, err, "status 404")
}

func TestCommitURL(t *testing.T) {
	h := NewHubUploader("https://huggingface.co/", "tok", nil, nil)
	assert.Equal(t, "https://huggingface.co/api/spaces/user/space/commit/main", h.commitURL(Target{RepoID: "user/space"}))
	assert.Equal(t, "https://huggingface.co/api/datasets/user/data/commit/dev", h.commitURL(Target{RepoID: "user/data", RepoType: "dataset", Revision: "dev"}))
	assert.Equal(t, "https://huggingface.co/api/spaces/user/space/preupload/main", h.apiURL(Target{RepoID: "user/space"}, "preupload"))
	assert.Equal(t, "https://huggingface.co/spaces/user/space.git/info/lfs/objects/batch", h.lfsBatchURL(Target{RepoID: "user/space"}))
	assert.Equal(t, "https://huggingface.co/user/model.git/info/lfs/objects/batch", h.lfsBatchURL(Target{RepoID: "user/model", RepoType: "model"}))
}

func TestRemoteURL(t *testing.T) {
	g := NewGitUploader("https://huggingface.co", "tok", nil, nil)
	assert.Equal(t, "https://huggingface.co/spaces/user/space", g.RemoteURL(Target{RepoID: "user/space"}))
	assert.Equal(t, "https://huggingface.co/datasets/user/data", g.RemoteURL(Target{RepoID: "user/data", RepoType: "dataset"}))
	assert.Equal(t, "https://huggingface.co/user/model", g.RemoteURL(Target{RepoID: "user/model", RepoType: "model"}))
}

func TestCommitStaged(t *testing.T) {
	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)

	staging := t.TempDir()
	testutil.WriteFile(t, staging, "README.md", "# Drug Classification")
	testutil.WriteFile(t, staging, "Model/drug_pipeline.gob", "model-v1")
	when := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	hash, changed, err := commitStaged(repo, staging, "Update app + model", when)
	require.NoError(t, err)
	require.True(t, changed)

	commit, err := repo.CommitObject(hash)
	require.NoError(t, err)
	assert.Equal(t, "Update app + model", commit.Message)
	assert.Equal(t, authorName, commit.Author.Name)
	iter, err := commit.Files()
	require.NoError(t, err)
	files := map[string]bool{}
	require.NoError(t, iter.ForEach(func(f *object.File) error {
		files[f.Name] = true
		return nil
	}))
	assert.Equal(t, map[string]bool{"README.md": true, "Model/drug_pipeline.gob": true}, files)

	_, changed, err = commitStaged(repo, staging, "Update app + model", when)
	require.NoError(t, err)
	assert.False(t, changed, "re-deploying identical files is a no-op")

	testutil.WriteFile(t, staging, "Model/drug_pipeline.gob", "model-v2")
	_, changed, err = commitStaged(repo, staging, "Update app + model", when.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
}

func commitFiles(t *testing.T, repo *git.Repository, hash plumbing.Hash) map[string]string {
	t.Helper()
	commit, err := repo.CommitObject(hash)
	require.NoError(t, err)
	iter, err := commit.Files()
	require.NoError(t, err)
	files := map[string]string{}
	require.NoError(t, iter.ForEach(func(f *object.File) error {
		content, err := f.Contents()
		files[f.Name] = content
		return err
	}))
	return files
}

func TestCommitStagedDropsFilesNoLongerStaged(t *testing.T) {
	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)
	when := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	staging := t.TempDir()
	testutil.WriteFile(t, staging, "README.md", "# Drug Classification")
	testutil.WriteFile(t, staging, "Model/old_pipeline.gob", "old")
	_, _, err = commitStaged(repo, staging, "first", when)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(staging, "Model", "old_pipeline.gob")))
	testutil.WriteFile(t, staging, "Model/drug_pipeline.gob", "new")
	testutil.WriteFile(t, repoDir, "scratch.txt", "untracked")

	hash, changed, err := commitStaged(repo, staging, "second", when.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, map[string]string{
		"README.md":               "# Drug Classification",
		"Model/drug_pipeline.gob": "new",
	}, commitFiles(t, repo, hash))
	assert.NoFileExists(t, filepath.Join(repoDir, "Model", "old_pipeline.gob"))
	assert.NoFileExists(t, filepath.Join(repoDir, "scratch.txt"))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	status, err := wt.Status()
	require.NoError(t, err)
	assert.True(t, status.IsClean())
}

func TestNewUploader(t *testing.T) {
	u, err := NewUploader(StrategyUpload, "https://huggingface.co", "tok", nil)
	require.NoError(t, err)
	assert.IsType(t, &HubUploader{}, u)

	u, err = NewUploader(StrategyGit, "https://huggingface.co", "tok", nil)
	require.NoError(t, err)
	assert.IsType(t, &GitUploader{}, u)

	_, err = NewUploader("ftp", "https://huggingface.co", "tok", nil)
	assert.Error(t, err)
}

type fakeUploader struct {
	authErr  error
	info     *CommitInfo
	dir      string
	target   Target
	uploaded bool
}

func (f *fakeUploader) Authenticate(context.Context) error { return f.authErr }

func (f *fakeUploader) Upload(_ context.Context, dir string, target Target) (*CommitInfo, error) {
	f.uploaded = true
	f.dir, f.target = dir, target
	return f.info, nil
}

func deployConfig(t *testing.T) config.DeployConfig {
	root := t.TempDir()
	app := filepath.Join(root, "App")
	testutil.WriteFile(t, app, "README.md", "# Drug Classification")

	cfg := config.Default().Deploy
	cfg.StagingDir = filepath.Join(root, "hf_space")
	cfg.Sources = []config.StageSource{{From: app, To: "."}}
	return cfg
}

func TestDeployerMissingEnvDoesNothing(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		missing []error
	}{
		{"token only", map[string]string{"HF": "tok"}, []error{ErrMissingRepo}},
		{"repo only", map[string]string{"HF_REPO": "user/space"}, []error{ErrMissingToken}},
		{"empty token", map[string]string{"HF": "", "HF_REPO": "user/space"}, []error{ErrMissingToken}},
		{"neither", map[string]string{}, []error{ErrMissingToken, ErrMissingRepo}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newHubServer(t, "tok")
			cfg := deployConfig(t)
			calls := 0
			d := New(cfg, nil,
				WithLookup(lookupFrom(tt.vars)),
				WithUploaderFactory(func(env Env) (Uploader, error) {
					calls++
					return NewHubUploader(srv.URL, env.Token, srv.Client(), nil), nil
				}),
			)

			_, err := d.Run(context.Background())
			assert.True(t, IsMissingEnv(err))
			for _, want := range tt.missing {
				assert.ErrorIs(t, err, want)
			}
			assert.Equal(t, 0, calls)
			assert.Empty(t, srv.paths, "no request reaches the Hub")
			assert.NoDirExists(t, cfg.StagingDir)
		})
	}
}

func TestDeployerRun(t *testing.T) {
	cfg := deployConfig(t)
	fake := &fakeUploader{info: &CommitInfo{URL: "https://huggingface.co/spaces/user/space/commit/abc", OID: "abc"}}
	var gotEnv Env
	d := New(cfg, nil,
		WithLookup(lookupFrom(map[string]string{"HF": "tok", "HF_REPO": "user/space"})),
		WithUploaderFactory(func(env Env) (Uploader, error) {
			gotEnv = env
			return fake, nil
		}),
	)

	info, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", info.OID)
	assert.Equal(t, Env{Token: "tok", Repo: "user/space"}, gotEnv)
	assert.True(t, fake.uploaded)
	assert.Equal(t, cfg.StagingDir, fake.dir)
	assert.Equal(t, Target{RepoID: "user/space", RepoType: "space", Revision: "main", Message: "Update app + model"}, fake.target)
	assert.FileExists(t, filepath.Join(cfg.StagingDir, "README.md"))

	var out bytes.Buffer
	Report(&out, info)
	assert.Equal(t, "Commit: https://huggingface.co/spaces/user/space/commit/abc\n", out.String())
}

func TestDeployerAuthenticationFailure(t *testing.T) {
	fake := &fakeUploader{authErr: ErrUnauthorized}
	d := New(deployConfig(t), nil,
		WithLookup(lookupFrom(map[string]string{"HF": "tok", "HF_REPO": "user/space"})),
		WithUploaderFactory(func(Env) (Uploader, error) { return fake, nil }),
	)

	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorContains(t, err, "authentication failed")
	assert.False(t, fake.uploaded)
}

func TestReportNoChanges(t *testing.T) {
	var out bytes.Buffer
	Report(&out, &CommitInfo{NoChanges: true})
	assert.Equal(t, "Nothing to deploy: Space is up to date\n", out.String())
}
