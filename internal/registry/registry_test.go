package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"ovpn-issuer/internal/credstore"
	"ovpn-issuer/internal/profile"
)

// fakeIssuer stands in for easy-rsa by writing certificate and key files into the store.
type fakeIssuer struct {
	store *credstore.Store
	err   error
	// skipWrite simulates a tool that exits 0 but produces nothing.
	skipWrite bool
	calls     []string
}

func (f *fakeIssuer) Issue(_ context.Context, identity string) error {
	f.calls = append(f.calls, identity)
	if f.err != nil {
		return f.err
	}
	if f.skipWrite {
		return nil
	}
	for role, content := range map[credstore.Role]string{
		credstore.RoleCertificate: "CERT " + identity + "\n",
		credstore.RolePrivateKey:  "KEY " + identity + "\n",
		credstore.RoleRequest:     "REQ " + identity + "\n",
	} {
		path, err := f.store.PathFor(role, identity)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return err
		}
	}
	return nil
}

type recordedEvent struct {
	identity string
	action   Action
	outcome  Outcome
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *memoryRecorder) Record(_ context.Context, identity string, action Action, outcome Outcome, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{identity, action, outcome})
	return nil
}

type fixture struct {
	registry  *Registry
	store     *credstore.Store
	issuer    *fakeIssuer
	recorder  *memoryRecorder
	outputDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	pkiDir := filepath.Join(root, "pki")
	for _, dir := range []string{"issued", "private", "reqs"} {
		require.NoError(t, os.MkdirAll(filepath.Join(pkiDir, dir), 0o700))
	}
	require.NoError(t, os.WriteFile(filepath.Join(pkiDir, "ca.crt"), []byte("CA\n"), 0o644))
	taPath := filepath.Join(root, "ta.key")
	require.NoError(t, os.WriteFile(taPath, []byte("TA\n"), 0o600))

	store, err := credstore.New(credstore.Layout{PKIDir: pkiDir, TLSAuthPath: taPath})
	require.NoError(t, err)

	issuer := &fakeIssuer{store: store}
	recorder := &memoryRecorder{}
	outputDir := filepath.Join(root, "clients")
	reg, err := New(Options{
		Store:     store,
		Issuer:    issuer,
		OutputDir: outputDir,
		Params:    profile.DefaultParams("vpn.example.com"),
		Events:    recorder,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return &fixture{registry: reg, store: store, issuer: issuer, recorder: recorder, outputDir: outputDir}
}

func TestIssueFetchRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.registry.Issue(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(f.outputDir, "alice.ovpn"), issued.Path)

	fetched, err := f.registry.Fetch("alice")
	require.NoError(t, err)
	require.Equal(t, issued.Content, fetched.Content)

	artifacts, err := f.store.ReadArtifacts("alice")
	require.NoError(t, err)
	doc, err := profile.Parse(fetched.Content)
	require.NoError(t, err)
	require.Equal(t, string(artifacts.CA), doc.InlineBlocks[profile.BlockCA])
	require.Equal(t, string(artifacts.Certificate), doc.InlineBlocks[profile.BlockCert])
	require.Equal(t, string(artifacts.PrivateKey), doc.InlineBlocks[profile.BlockKey])
	require.Equal(t, string(artifacts.TLSAuth), doc.InlineBlocks[profile.BlockTLSAuth])

	info, err := os.Stat(issued.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestUnissuedClient(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Fetch("ghost")
	require.ErrorIs(t, err, ErrNotFound)

	revoked, err := f.registry.Revoke(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, revoked)

	_, statErr := os.Stat(f.outputDir)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Issue(ctx, "alice")
	require.NoError(t, err)

	revoked, err := f.registry.Revoke(ctx, "alice")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = f.registry.Revoke(ctx, "alice")
	require.NoError(t, err)
	require.False(t, revoked)

	_, err = f.registry.Fetch("alice")
	require.ErrorIs(t, err, ErrNotFound)
	for _, role := range []credstore.Role{credstore.RoleCertificate, credstore.RolePrivateKey, credstore.RoleRequest} {
		path, _ := f.store.PathFor(role, "alice")
		_, statErr := os.Stat(path)
		require.ErrorIs(t, statErr, os.ErrNotExist, role)
	}
}

func TestRevokeRemovesOrphanedArtifacts(t *testing.T) {
	f := newFixture(t)
	path, _ := f.store.PathFor(credstore.RolePrivateKey, "orphan")
	require.NoError(t, os.WriteFile(path, []byte("KEY"), 0o600))

	revoked, err := f.registry.Revoke(context.Background(), "orphan")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestListAfterRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"alice", "bob"} {
		_, err := f.registry.Issue(ctx, name)
		require.NoError(t, err)
	}
	_, err := f.registry.Revoke(ctx, "alice")
	require.NoError(t, err)

	names, err := f.registry.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"bob"}, names)

	count, err := f.registry.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.outputDir, "nested.ovpn"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(f.outputDir, "notes.txt"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(f.outputDir, "carol.ovpn.tmp"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(f.outputDir, "dave.ovpn"), nil, 0o600))

	names, err := f.registry.List()
	require.NoError(t, err)
	sort.Strings(names)
	require.Equal(t, []string{"dave"}, names)
}

func TestListMissingOutputDir(t *testing.T) {
	f := newFixture(t)
	names, err := f.registry.List()
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestIssuePKIFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.issuer.err = errors.New("exit status 1")

	_, err := f.registry.Issue(context.Background(), "alice")
	var issueErr *IssueError
	require.True(t, errors.As(err, &issueErr))
	require.Equal(t, PhasePKI, issueErr.Phase)

	_, statErr := os.Stat(f.outputDir)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestIssueArtifactFailureLeavesNoProfile(t *testing.T) {
	f := newFixture(t)
	f.issuer.skipWrite = true

	_, err := f.registry.Issue(context.Background(), "alice")
	var issueErr *IssueError
	require.True(t, errors.As(err, &issueErr))
	require.Equal(t, PhaseArtifacts, issueErr.Phase)
	require.ErrorIs(t, err, credstore.ErrMissingArtifact)

	_, err = f.registry.Fetch("alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIssueRejectsExistingProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Issue(ctx, "alice")
	require.NoError(t, err)

	_, err = f.registry.Issue(ctx, "alice")
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Len(t, f.issuer.calls, 1)
}

func TestReissueReplacesProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.issuer.skipWrite = true
	_, err := f.registry.Issue(ctx, "alice")
	require.Error(t, err)

	f.issuer.skipWrite = false
	p, err := f.registry.Reissue(ctx, "alice")
	require.NoError(t, err)
	require.Contains(t, string(p.Content), "CERT alice")

	p, err = f.registry.Reissue(ctx, "alice")
	require.NoError(t, err)
	require.FileExists(t, p.Path)
}

func TestInvalidIdentityRejectedEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, identity := range []string{"../alice", "a/b", "..", "", "bad name"} {
		_, err := f.registry.Issue(ctx, identity)
		require.ErrorIs(t, err, credstore.ErrInvalidIdentity)
		_, err = f.registry.Reissue(ctx, identity)
		require.ErrorIs(t, err, credstore.ErrInvalidIdentity)
		_, err = f.registry.Fetch(identity)
		require.ErrorIs(t, err, credstore.ErrInvalidIdentity)
		_, err = f.registry.Revoke(ctx, identity)
		require.ErrorIs(t, err, credstore.ErrInvalidIdentity)
	}
	require.Empty(t, f.issuer.calls)
	require.Empty(t, f.recorder.events)
	_, statErr := os.Stat(f.outputDir)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestEventsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Issue(ctx, "alice")
	require.NoError(t, err)
	_, err = f.registry.Revoke(ctx, "alice")
	require.NoError(t, err)
	_, err = f.registry.Revoke(ctx, "alice")
	require.NoError(t, err)

	require.Equal(t, []recordedEvent{
		{"alice", ActionIssue, OutcomeOK},
		{"alice", ActionRevoke, OutcomeOK},
		{"alice", ActionRevoke, OutcomeNoop},
	}, f.recorder.events)
}

func TestNewValidatesOptions(t *testing.T) {
	f := newFixture(t)
	_, err := New(Options{Issuer: f.issuer, OutputDir: "x", Params: profile.DefaultParams("h")})
	require.Error(t, err)
	_, err = New(Options{Store: f.store, Issuer: f.issuer, OutputDir: "x", Params: profile.DefaultParams("h"), Extension: "ovpn"})
	require.Error(t, err)
}

func TestMissingEndpointOnlyBlocksIssuance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Issue(ctx, "alice")
	require.NoError(t, err)

	reg, err := New(Options{
		Store:     f.store,
		Issuer:    f.issuer,
		OutputDir: f.outputDir,
		Params:    profile.DefaultParams(""),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	identities, err := reg.List()
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, identities)
	_, err = reg.Fetch("alice")
	require.NoError(t, err)

	_, err = reg.Issue(ctx, "bob")
	require.ErrorIs(t, err, ErrProfileParams)
	_, err = reg.Reissue(ctx, "alice")
	require.ErrorIs(t, err, ErrProfileParams)
	require.Equal(t, []string{"alice"}, f.issuer.calls)

	_, err = reg.Fetch("alice")
	require.NoError(t, err, "a rejected reissue must not revoke the existing client")
}

func TestInspectReadsBackEndpoint(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Issue(context.Background(), "alice")
	require.NoError(t, err)

	inspection, err := f.registry.Inspect("alice")
	require.NoError(t, err)
	require.Equal(t, &Inspection{
		Identity: "alice",
		Host:     "vpn.example.com",
		Port:     profile.DefaultPort,
		Proto:    "udp",
		Blocks:   []string{profile.BlockCA, profile.BlockCert, profile.BlockKey, profile.BlockTLSAuth},
	}, inspection)

	_, err = f.registry.Inspect("nobody")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(f.outputDir, "broken.ovpn"), []byte("dev tun\n"), 0o600))
	_, err = f.registry.Inspect("broken")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestEventDetailOmitsPaths(t *testing.T) {
	f := newFixture(t)
	f.issuer.skipWrite = true
	_, err := f.registry.Issue(context.Background(), "alice")
	require.ErrorContains(t, err, filepath.Dir(f.outputDir))

	require.Equal(t, "artifacts phase failed", eventDetail(err))
	require.Equal(t, "client already exists", eventDetail(ErrAlreadyExists))
	require.Equal(t, "failed", eventDetail(errors.New("remove profile: /srv/clients/alice.ovpn: permission denied")))
}
