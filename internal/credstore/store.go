// Package credstore reads and removes the easy-rsa artifacts that back a client profile.
// Every on-disk location is derived by PathFor, which also enforces identity validation.
package credstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Role names a kind of file kept in the credential store.
type Role string

const (
	RoleCA          Role = "ca"
	RoleCertificate Role = "cert"
	RolePrivateKey  Role = "key"
	RoleRequest     Role = "req"
	RoleTLSAuth     Role = "tls-auth"
)

// ErrMissingArtifact indicates a required credential file is absent or unreadable.
var ErrMissingArtifact = errors.New("missing credential artifact")

// MissingArtifactError reports which artifact could not be read.
type MissingArtifactError struct {
	Kind Role
	Path string
	Err  error
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", ErrMissingArtifact, e.Kind, e.Path, e.Err)
}

func (e *MissingArtifactError) Unwrap() []error {
	return []error{ErrMissingArtifact, e.Err}
}

// Artifacts holds the four byte sequences embedded in a connection profile.
type Artifacts struct {
	CA          []byte
	Certificate []byte
	PrivateKey  []byte
	TLSAuth     []byte
}

// Layout describes where easy-rsa keeps its files.
type Layout struct {
	// PKIDir is the easy-rsa "pki" directory (holding ca.crt, issued/, private/, reqs/).
	PKIDir string
	// TLSAuthPath is the shared tls-auth key, provisioned outside the PKI.
	TLSAuthPath string
}

// Store provides read and delete primitives keyed by client identity.
type Store struct {
	layout Layout
}

// New creates a store over layout.
func New(layout Layout) (*Store, error) {
	layout.PKIDir = strings.TrimSpace(layout.PKIDir)
	layout.TLSAuthPath = strings.TrimSpace(layout.TLSAuthPath)
	if layout.PKIDir == "" {
		return nil, fmt.Errorf("pki directory is required")
	}
	if layout.TLSAuthPath == "" {
		return nil, fmt.Errorf("tls-auth key path is required")
	}
	return &Store{layout: layout}, nil
}

// PathFor returns the location of role for identity. Identity is ignored for shared roles.
func (s *Store) PathFor(role Role, identity string) (string, error) {
	switch role {
	case RoleCA:
		return filepath.Join(s.layout.PKIDir, "ca.crt"), nil
	case RoleTLSAuth:
		return s.layout.TLSAuthPath, nil
	}
	if err := ValidateIdentity(identity); err != nil {
		return "", err
	}
	switch role {
	case RoleCertificate:
		return filepath.Join(s.layout.PKIDir, "issued", identity+".crt"), nil
	case RolePrivateKey:
		return filepath.Join(s.layout.PKIDir, "private", identity+".key"), nil
	case RoleRequest:
		return filepath.Join(s.layout.PKIDir, "reqs", identity+".req"), nil
	default:
		return "", fmt.Errorf("unknown credential role %q", role)
	}
}

// ReadArtifacts loads everything needed to render identity's profile.
func (s *Store) ReadArtifacts(identity string) (Artifacts, error) {
	if err := ValidateIdentity(identity); err != nil {
		return Artifacts{}, err
	}
	var artifacts Artifacts
	targets := []struct {
		role Role
		dst  *[]byte
	}{
		{RoleCA, &artifacts.CA},
		{RoleCertificate, &artifacts.Certificate},
		{RolePrivateKey, &artifacts.PrivateKey},
		{RoleTLSAuth, &artifacts.TLSAuth},
	}
	for _, target := range targets {
		path, err := s.PathFor(target.role, identity)
		if err != nil {
			return Artifacts{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Artifacts{}, &MissingArtifactError{Kind: target.role, Path: path, Err: err}
		}
		*target.dst = data
	}
	return artifacts, nil
}

// DeleteArtifacts removes identity's certificate, private key and signing request.
// It reports whether any of them existed. A missing file never stops removal of the others.
func (s *Store) DeleteArtifacts(identity string) (bool, error) {
	if err := ValidateIdentity(identity); err != nil {
		return false, err
	}
	existed := false
	var errs []error
	for _, role := range []Role{RoleCertificate, RolePrivateKey, RoleRequest} {
		path, err := s.PathFor(role, identity)
		if err != nil {
			return false, err
		}
		err = os.Remove(path)
		switch {
		case err == nil:
			existed = true
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, fmt.Errorf("remove %s: %w", role, err))
		}
	}
	return existed, errors.Join(errs...)
}
