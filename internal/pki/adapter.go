// Package pki drives easy-rsa to create and sign client key material.
package pki

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"ovpn-issuer/internal/credstore"
)

// ErrPKI indicates easy-rsa exited unsuccessfully.
var ErrPKI = errors.New("pki tool failed")

// Step identifies one easy-rsa invocation during issuance.
type Step string

const (
	StepGenReq  Step = "gen-req"
	StepSignReq Step = "sign-req"
)

// maxOutput bounds how much tool output is kept on an Error.
const maxOutput = 4096

// Error reports a failed easy-rsa step.
type Error struct {
	Step     Step
	Identity string
	Output   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrPKI, e.Step, e.Identity, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrPKI, e.Err}
}

// Options configures an Adapter.
type Options struct {
	// Dir is the easy-rsa root, used as the working directory.
	Dir string
	// Binary is the easy-rsa executable. Defaults to Dir/easyrsa.
	Binary string
	Runner Runner
	Logger zerolog.Logger
}

// Adapter issues client certificates through easy-rsa.
type Adapter struct {
	dir    string
	binary string
	runner Runner
	log    zerolog.Logger
}

// New creates an adapter rooted at opts.Dir.
func New(opts Options) (*Adapter, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, fmt.Errorf("easy-rsa directory is required")
	}
	// exec resolves a relative binary against the working directory it
	// switches to, so both paths are pinned before the first run.
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve easy-rsa directory: %w", err)
	}
	binary := strings.TrimSpace(opts.Binary)
	switch {
	case binary == "":
		binary = filepath.Join(dir, "easyrsa")
	case strings.ContainsRune(binary, filepath.Separator) && !filepath.IsAbs(binary):
		if binary, err = filepath.Abs(binary); err != nil {
			return nil, fmt.Errorf("resolve easy-rsa binary: %w", err)
		}
	}
	runner := opts.Runner
	if runner == nil {
		runner = execRunner{}
	}
	return &Adapter{
		dir:    dir,
		binary: binary,
		runner: runner,
		log:    opts.Logger.With().Str("component", "pki").Logger(),
	}, nil
}

// Issue generates an unencrypted key pair and request for identity, then signs it as a client certificate.
// Signing only runs after the request was generated. Failures are not retried.
func (a *Adapter) Issue(ctx context.Context, identity string) error {
	if err := credstore.ValidateIdentity(identity); err != nil {
		return err
	}
	if err := a.run(ctx, StepGenReq, identity, "", "gen-req", identity, "nopass"); err != nil {
		return err
	}
	return a.run(ctx, StepSignReq, identity, "yes\n", "sign-req", "client", identity)
}

func (a *Adapter) run(ctx context.Context, step Step, identity, stdin string, args ...string) error {
	cmd := Command{
		Dir:   a.dir,
		Env:   []string{"EASYRSA_BATCH=1"},
		Stdin: stdin,
		Name:  a.binary,
		Args:  args,
	}
	a.log.Debug().Str("step", string(step)).Str("identity", identity).Str("cmd", cmd.String()).Msg("running easy-rsa")
	output, err := a.runner.Run(ctx, cmd)
	if err != nil {
		trimmed := truncate(strings.TrimSpace(string(output)), maxOutput)
		a.log.Error().Err(err).Str("step", string(step)).Str("identity", identity).Str("output", trimmed).Msg("easy-rsa step failed")
		return &Error{Step: step, Identity: identity, Output: trimmed, Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
