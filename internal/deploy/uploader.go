package deploy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	StrategyUpload = "upload"
	StrategyGit    = "git"
)

// Target names the destination of one upload.
type Target struct {
	RepoID   string
	RepoType string
	Revision string
	Message  string
}

type CommitInfo struct {
	URL       string
	OID       string
	NoChanges bool
}

// Uploader publishes a staged directory. Implementations are interchangeable.
type Uploader interface {
	Authenticate(ctx context.Context) error
	Upload(ctx context.Context, dir string, target Target) (*CommitInfo, error)
}

// NewUploader returns the uploader for strategy.
func NewUploader(strategy, endpoint, token string, logger *zap.Logger) (Uploader, error) {
	client := &http.Client{Timeout: 5 * time.Minute}
	switch strategy {
	case StrategyUpload, "":
		return NewHubUploader(endpoint, token, client, logger), nil
	case StrategyGit:
		return NewGitUploader(endpoint, token, client, logger), nil
	default:
		return nil, fmt.Errorf("unknown deploy strategy %q", strategy)
	}
}
