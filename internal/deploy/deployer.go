package deploy

import (
	"context"
	"fmt"
	"io"

	"drugclassifier/internal/config"

	"go.uber.org/zap"
)

// UploaderFactory builds the uploader once credentials are known.
type UploaderFactory func(env Env) (Uploader, error)

type Deployer struct {
	cfg         config.DeployConfig
	lookup      LookupFunc
	newUploader UploaderFactory
	logger      *zap.Logger
}

type Option func(*Deployer)

// WithLookup replaces os.LookupEnv.
func WithLookup(lookup LookupFunc) Option {
	return func(d *Deployer) { d.lookup = lookup }
}

func WithUploaderFactory(f UploaderFactory) Option {
	return func(d *Deployer) { d.newUploader = f }
}

func New(cfg config.DeployConfig, logger *zap.Logger, opts ...Option) *Deployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deployer{cfg: cfg, logger: logger}
	d.newUploader = func(env Env) (Uploader, error) {
		return NewUploader(cfg.Strategy, cfg.Endpoint, env.Token, logger)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run checks the environment, stages the sources and publishes them. Nothing
// touches the network until both variables are present.
func (d *Deployer) Run(ctx context.Context) (*CommitInfo, error) {
	env, err := ReadEnv(d.lookup, d.cfg.TokenEnv, d.cfg.RepoEnv)
	if err != nil {
		return nil, err
	}

	files, err := Stage(d.cfg.StagingDir, d.cfg.Sources)
	if err != nil {
		return nil, err
	}
	d.logger.Info("staged files", zap.String("dir", d.cfg.StagingDir), zap.Strings("files", files))

	uploader, err := d.newUploader(env)
	if err != nil {
		return nil, err
	}
	if err := uploader.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	info, err := uploader.Upload(ctx, d.cfg.StagingDir, Target{
		RepoID:   env.Repo,
		RepoType: d.cfg.RepoType,
		Revision: d.cfg.Revision,
		Message:  d.cfg.CommitMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	d.logger.Info("deployed", zap.String("repo", env.Repo), zap.String("commit", info.OID),
		zap.Bool("no_changes", info.NoChanges))
	return info, nil
}

// Report prints the outcome of Run the way the deploy binary shows it.
func Report(w io.Writer, info *CommitInfo) {
	if info == nil {
		return
	}
	if info.NoChanges {
		fmt.Fprintln(w, "Nothing to deploy: Space is up to date")
		return
	}
	if info.URL != "" {
		fmt.Fprintf(w, "Commit: %s\n", info.URL)
	}
}
