// Package tooltest builds a ServerContext backed by a real vault and
// registry in a temp dir and a fake clientset, for tool handler tests.
package tooltest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/registry"
	"github.com/giantswarm/kubedeck/internal/server"
	"github.com/giantswarm/kubedeck/internal/supervisor"
	"github.com/giantswarm/kubedeck/internal/vault"
)

// Handler matches tools.ToolHandler.
type Handler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// Fixture holds the components behind SC.
type Fixture struct {
	SC       *server.ServerContext
	Vault    *vault.Vault
	Registry *registry.Store
	Kube     *fake.Clientset
	Recorder *events.Recorder
	// Dir is a scratch directory outside the vault for source kubeconfigs.
	Dir string
}

type options struct {
	readOnly  bool
	legacyDir string
	objects   []runtime.Object
}

// Option configures New.
type Option func(*options)

// ReadOnly starts the server in read-only mode.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// LegacyDir sets the directory migrate_legacy_credentials reads.
func LegacyDir(dir string) Option {
	return func(o *options) { o.legacyDir = dir }
}

// Objects seeds the fake clientset every registered cluster resolves to.
func Objects(objects ...runtime.Object) Option {
	return func(o *options) { o.objects = append(o.objects, objects...) }
}

// New builds a Fixture. Everything is shut down when the test ends.
func New(t *testing.T, opts ...Option) *Fixture {
	t.Helper()

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	ctx := context.Background()
	root := t.TempDir()

	v, err := vault.New(filepath.Join(root, "kubeconfigs"))
	require.NoError(t, err)

	store, err := registry.Open(ctx, filepath.Join(root, "clusters.db"), v)
	require.NoError(t, err)

	kube := fake.NewSimpleClientset(o.objects...)
	factory := func(_ context.Context, _ registry.ClusterRecord, config *rest.Config) (*k8s.Clients, error) {
		return &k8s.Clients{Kube: kube, Config: config}, nil
	}
	resolver := k8s.NewResolver(store, v, k8s.WithClientFactory(factory))

	recorder := events.NewRecorder()
	sup := supervisor.New(resolver, recorder,
		supervisor.WithToucher(store),
		supervisor.WithResyncPeriod(0),
	)

	legacy := o.legacyDir
	if legacy == "" {
		legacy = v.Root()
	}

	sc, err := server.NewServerContext(ctx,
		server.WithVault(v),
		server.WithRegistry(store),
		server.WithResolver(resolver),
		server.WithSupervisor(sup),
		server.WithConfig(&server.Config{ServerName: "kubedeck", Version: "test", LegacyDir: legacy}),
		server.WithReadOnly(o.readOnly),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sc.Shutdown(ctx)
	})

	return &Fixture{
		SC:       sc,
		Vault:    v,
		Registry: store,
		Kube:     kube,
		Recorder: recorder,
		Dir:      filepath.Join(root, "sources"),
	}
}

// WriteKubeconfig writes a kubeconfig with one context per name to path.
// Each context uses a cluster and a user of the same name.
func WriteKubeconfig(t *testing.T, path string, contexts ...string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("apiVersion: v1\nkind: Config\n")
	if len(contexts) > 0 {
		fmt.Fprintf(&b, "current-context: %s\n", contexts[0])
	}
	b.WriteString("clusters:\n")
	for _, name := range contexts {
		fmt.Fprintf(&b, "- name: %s\n  cluster:\n    server: https://%s.example.com:6443\n", name, name)
	}
	b.WriteString("users:\n")
	for _, name := range contexts {
		fmt.Fprintf(&b, "- name: %s\n  user:\n    token: token-%s\n", name, name)
	}
	b.WriteString("contexts:\n")
	for _, name := range contexts {
		fmt.Fprintf(&b, "- name: %s\n  context:\n    cluster: %s\n    user: %s\n", name, name, name)
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

// SourceKubeconfig writes a kubeconfig named file into the scratch dir.
func (f *Fixture) SourceKubeconfig(t *testing.T, file string, contexts ...string) string {
	t.Helper()
	return WriteKubeconfig(t, filepath.Join(f.Dir, file), contexts...)
}

// Register imports contextName into the vault and registers it under name.
func (f *Fixture) Register(t *testing.T, name, contextName string) registry.ClusterRecord {
	t.Helper()

	source := f.SourceKubeconfig(t, contextName+".yaml", contextName)
	id := registry.NewID()
	dest, err := f.Vault.ExtractContext(source, contextName, id)
	require.NoError(t, err)

	rec, err := f.Registry.Add(context.Background(), registry.ClusterRecord{
		ID:             id,
		Name:           name,
		ContextName:    contextName,
		CredentialPath: dest,
	})
	require.NoError(t, err)
	return rec
}

// Call invokes handler with args.
func (f *Fixture) Call(t *testing.T, handler Handler, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	result, err := handler(context.Background(), req, f.SC)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

// Text returns the text of the first content item of result.
func Text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}
