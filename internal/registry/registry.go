// Package registry orchestrates the client credential lifecycle: issue, list, fetch, revoke.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ovpn-issuer/internal/credstore"
	"ovpn-issuer/internal/profile"
)

var (
	// ErrNotFound indicates no profile exists for the client.
	ErrNotFound = errors.New("client not found")
	// ErrAlreadyExists indicates a profile is already issued for the client.
	ErrAlreadyExists = errors.New("client already exists")
	// ErrProfileParams indicates the configured server endpoint cannot be written into a profile.
	ErrProfileParams = errors.New("invalid profile parameters")
)

// DefaultExtension is the file extension of stored profiles.
const DefaultExtension = ".ovpn"

// Phase names the issuance stage that failed.
type Phase string

const (
	// PhasePKI means the PKI tool failed or never ran; nothing was read or written.
	PhasePKI Phase = "pki"
	// PhaseArtifacts means the PKI tool ran but its output could not be read.
	PhaseArtifacts Phase = "artifacts"
	// PhasePersist means the profile was rendered but could not be written.
	PhasePersist Phase = "persist"
)

// IssueError reports a failed issuance and the phase it failed in.
type IssueError struct {
	Identity string
	Phase    Phase
	Err      error
}

func (e *IssueError) Error() string {
	return fmt.Sprintf("issue %s: %s phase: %v", e.Identity, e.Phase, e.Err)
}

func (e *IssueError) Unwrap() error {
	return e.Err
}

// Issuer creates key material for a client.
type Issuer interface {
	Issue(ctx context.Context, identity string) error
}

// Profile is a rendered connection profile on disk.
// Path is kept out of API responses; it reveals the server's directory layout.
type Profile struct {
	Identity string `json:"client"`
	Path     string `json:"-"`
	Content  []byte `json:"-"`
}

// Inspection is what a stored profile says about where its client connects.
type Inspection struct {
	Identity string   `json:"client"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Proto    string   `json:"proto"`
	Blocks   []string `json:"blocks"`
}

// Options configures a Registry.
type Options struct {
	Store     *credstore.Store
	Issuer    Issuer
	OutputDir string
	Extension string
	Params    profile.Params
	Events    EventRecorder
	Logger    zerolog.Logger
}

// Registry manages issued client profiles.
type Registry struct {
	mu sync.Mutex

	store     *credstore.Store
	issuer    Issuer
	outputDir string
	extension string
	params    profile.Params
	events    EventRecorder
	log       zerolog.Logger
}

// New creates a registry. Params are checked when a profile is rendered, so read-only
// operations work on hosts without a configured server endpoint.
func New(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if opts.Issuer == nil {
		return nil, fmt.Errorf("issuer is required")
	}
	outputDir := strings.TrimSpace(opts.OutputDir)
	if outputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	extension := opts.Extension
	if extension == "" {
		extension = DefaultExtension
	}
	if !strings.HasPrefix(extension, ".") || strings.ContainsAny(extension, `/\`) {
		return nil, fmt.Errorf("invalid profile extension %q", extension)
	}
	events := opts.Events
	if events == nil {
		events = nopRecorder{}
	}
	return &Registry{
		store:     opts.Store,
		issuer:    opts.Issuer,
		outputDir: outputDir,
		extension: extension,
		params:    opts.Params,
		events:    events,
		log:       opts.Logger.With().Str("component", "registry").Logger(),
	}, nil
}

// Issue creates key material for identity, renders its profile and stores it.
// The profile is only written after all four artifacts were read. Key material
// left behind by a failed artifact read is not removed; see Reissue.
func (r *Registry) Issue(ctx context.Context, identity string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.issueLocked(ctx, identity)
	r.record(ctx, identity, ActionIssue, err)
	return p, err
}

// Reissue revokes whatever exists for identity and issues it again.
func (r *Registry) Reissue(ctx context.Context, identity string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := credstore.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if err := r.checkParams(); err != nil {
		r.record(ctx, identity, ActionReissue, err)
		return nil, err
	}
	existed, err := r.revokeLocked(identity)
	if err != nil {
		r.record(ctx, identity, ActionReissue, err)
		return nil, err
	}
	r.log.Info().Str("identity", identity).Bool("existed", existed).Msg("cleared client before reissue")
	p, err := r.issueLocked(ctx, identity)
	r.record(ctx, identity, ActionReissue, err)
	return p, err
}

func (r *Registry) issueLocked(ctx context.Context, identity string) (*Profile, error) {
	if err := credstore.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if err := r.checkParams(); err != nil {
		return nil, err
	}
	path := r.profilePath(identity)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, identity)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := r.issuer.Issue(ctx, identity); err != nil {
		return nil, &IssueError{Identity: identity, Phase: PhasePKI, Err: err}
	}

	artifacts, err := r.store.ReadArtifacts(identity)
	if err != nil {
		r.log.Warn().Err(err).Str("identity", identity).Msg("pki succeeded but artifacts are unreadable; key material left in place")
		return nil, &IssueError{Identity: identity, Phase: PhaseArtifacts, Err: err}
	}

	content := profile.Render(artifacts, r.params)
	if err := os.MkdirAll(r.outputDir, 0o700); err != nil {
		return nil, &IssueError{Identity: identity, Phase: PhasePersist, Err: err}
	}
	if err := writeFileAtomic(path, content, 0o600); err != nil {
		return nil, &IssueError{Identity: identity, Phase: PhasePersist, Err: err}
	}
	r.log.Info().Str("identity", identity).Str("path", path).Msg("issued client profile")
	return &Profile{Identity: identity, Path: path, Content: content}, nil
}

// List returns the identities with a stored profile, in directory order.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	identities := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(entry.Name(), r.extension)
		if !ok || credstore.ValidateIdentity(name) != nil {
			continue
		}
		identities = append(identities, name)
	}
	return identities, nil
}

// Count returns the number of stored profiles.
func (r *Registry) Count() (int, error) {
	identities, err := r.List()
	if err != nil {
		return 0, err
	}
	return len(identities), nil
}

// Fetch returns the stored profile for identity without re-rendering it.
func (r *Registry) Fetch(identity string) (*Profile, error) {
	if err := credstore.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	path := r.profilePath(identity)
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, identity)
		}
		return nil, err
	}
	return &Profile{Identity: identity, Path: path, Content: content}, nil
}

// Inspect reads back the stored profile for identity and reports its remote endpoint
// and the inline blocks it embeds.
func (r *Registry) Inspect(identity string) (*Inspection, error) {
	p, err := r.Fetch(identity)
	if err != nil {
		return nil, err
	}
	doc, err := profile.Parse(p.Content)
	if err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", identity, err)
	}
	host, port, ok := doc.Remote()
	if !ok {
		return nil, fmt.Errorf("profile %s has no usable remote directive", identity)
	}
	proto := ""
	if values := doc.Directives["proto"]; len(values) > 0 {
		proto = values[0]
	}
	blocks := make([]string, 0, len(doc.InlineBlocks))
	for name := range doc.InlineBlocks {
		blocks = append(blocks, name)
	}
	slices.Sort(blocks)
	return &Inspection{Identity: identity, Host: host, Port: port, Proto: proto, Blocks: blocks}, nil
}

// Revoke removes identity's profile and credential artifacts. It reports whether anything existed;
// revoking an unknown client is not an error.
func (r *Registry) Revoke(ctx context.Context, identity string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := credstore.ValidateIdentity(identity); err != nil {
		return false, err
	}
	existed, err := r.revokeLocked(identity)
	switch {
	case err != nil:
		r.record(ctx, identity, ActionRevoke, err)
	case existed:
		r.log.Info().Str("identity", identity).Msg("revoked client")
		r.record(ctx, identity, ActionRevoke, nil)
	default:
		r.recordNoop(ctx, identity, ActionRevoke)
	}
	return existed, err
}

func (r *Registry) revokeLocked(identity string) (bool, error) {
	profileExisted := false
	var errs []error
	if err := os.Remove(r.profilePath(identity)); err == nil {
		profileExisted = true
	} else if !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove profile: %w", err))
	}
	artifactsExisted, err := r.store.DeleteArtifacts(identity)
	if err != nil {
		errs = append(errs, err)
	}
	return profileExisted || artifactsExisted, errors.Join(errs...)
}

func (r *Registry) checkParams() error {
	if err := r.params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrProfileParams, err)
	}
	return nil
}

func (r *Registry) profilePath(identity string) string {
	return filepath.Join(r.outputDir, identity+r.extension)
}

func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, mode); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
