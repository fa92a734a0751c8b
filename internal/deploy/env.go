// Package deploy publishes the demo app and the trained model to a Hugging
// Face Space.
package deploy

import (
	"errors"
	"os"
	"strings"
)

var (
	ErrMissingToken = errors.New("access token not set")
	ErrMissingRepo  = errors.New("destination repo not set")
	ErrUnauthorized = errors.New("token rejected by the hub")
)

// MissingEnvMessage is what the deploy binary prints when either variable is
// absent.
const MissingEnvMessage = "HF token or HF_REPO not set as environment variables!"

type Env struct {
	Token string
	Repo  string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ReadEnv resolves the token and repo variables. Blank values count as
// missing.
func ReadEnv(lookup LookupFunc, tokenKey, repoKey string) (Env, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	token, _ := lookup(tokenKey)
	repo, _ := lookup(repoKey)
	env := Env{Token: strings.TrimSpace(token), Repo: strings.TrimSpace(repo)}

	var errs []error
	if env.Token == "" {
		errs = append(errs, ErrMissingToken)
	}
	if env.Repo == "" {
		errs = append(errs, ErrMissingRepo)
	}
	return env, errors.Join(errs...)
}

// IsMissingEnv reports whether err stems from an unset token or repo.
func IsMissingEnv(err error) bool {
	return errors.Is(err, ErrMissingToken) || errors.Is(err, ErrMissingRepo)
}
