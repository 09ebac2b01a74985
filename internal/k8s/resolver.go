package k8s

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/registry"
)

const (
	// DefaultQPSLimit is the default client-side QPS limit per cluster.
	DefaultQPSLimit = 20.0

	// DefaultBurstLimit is the default burst limit per cluster.
	DefaultBurstLimit = 30

	// DefaultTimeout bounds client construction for one cluster.
	DefaultTimeout = 10 * time.Second
)

// Clients bundles the API clients for one registered cluster.
type Clients struct {
	Kube    kubernetes.Interface
	Metrics metricsclientset.Interface
	Config  *rest.Config
}

// RecordSource looks up registered clusters.
type RecordSource interface {
	Get(ctx context.Context, id string) (registry.ClusterRecord, error)
}

// PathValidator confines credential paths to the vault.
type PathValidator interface {
	ValidatePath(candidate string) (string, error)
}

// ClientFactory builds clients from a prepared rest.Config.
type ClientFactory func(ctx context.Context, rec registry.ClusterRecord, config *rest.Config) (*Clients, error)

// NewClients is the default ClientFactory.
func NewClients(_ context.Context, _ registry.ClusterRecord, config *rest.Config) (*Clients, error) {
	kube, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	metrics, err := metricsclientset.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics clientset: %w", err)
	}
	return &Clients{Kube: kube, Metrics: metrics, Config: config}, nil
}

// Resolver turns a cluster id into ready-to-use clients. Results are cached
// per id until Invalidate is called or the cache entry expires.
type Resolver struct {
	records      RecordSource
	paths        PathValidator
	cache        *ClientCache
	factory      ClientFactory
	connectivity ConnectivityConfig
	probe        bool
	timeout      time.Duration
	logger       *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClientCache replaces the default cache. The resolver takes ownership
// and closes it in Close.
func WithClientCache(cache *ClientCache) ResolverOption {
	return func(r *Resolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithClientFactory replaces NewClients, e.g. with fake clientsets in tests.
func WithClientFactory(factory ClientFactory) ResolverOption {
	return func(r *Resolver) {
		if factory != nil {
			r.factory = factory
		}
	}
}

// WithConnectivityConfig sets rate limits and probe settings.
func WithConnectivityConfig(cc ConnectivityConfig) ResolverOption {
	return func(r *Resolver) {
		r.connectivity = cc
	}
}

// WithConnectivityCheck enables a /healthz probe before a new client is
// cached.
func WithConnectivityCheck(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.probe = enabled
	}
}

// WithTimeout bounds client construction.
func WithTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewResolver creates a Resolver over the given registry and vault.
func NewResolver(records RecordSource, paths PathValidator, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		records:      records,
		paths:        paths,
		factory:      NewClients,
		connectivity: DefaultConnectivityConfig(),
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewClientCache(WithCacheLogger(r.logger))
	}
	return r
}

// Resolve returns the clients for clusterID, building them on first use.
// Construction is bounded by the resolver timeout; a caller whose ctx ends
// first gets ctx's error.
func (r *Resolver) Resolve(ctx context.Context, clusterID string) (_ *Clients, err error) {
	ctx, span := instrumentation.StartClusterSpan(ctx, "resolve", clusterID)
	defer func() { instrumentation.EndSpan(span, err) }()

	return r.cache.GetOrCreate(ctx, clusterID, func(ctx context.Context) (*Clients, error) {
		return r.buildWithTimeout(ctx, clusterID)
	})
}

// Invalidate drops the cached clients for clusterID. It must be called
// after the cluster's record or credential file changes.
func (r *Resolver) Invalidate(ctx context.Context, clusterID string) {
	r.cache.Delete(ctx, clusterID)
}

// CacheStats reports the state of the client cache.
func (r *Resolver) CacheStats() CacheStats {
	return r.cache.Stats()
}

// Close releases the client cache.
func (r *Resolver) Close() error {
	return r.cache.Close()
}

type buildResult struct {
	clients *Clients
	err     error
}

func (r *Resolver) buildWithTimeout(ctx context.Context, clusterID string) (*Clients, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Loading the kubeconfig and building clientsets take no context, so the
	// deadline is enforced around them.
	ch := make(chan buildResult, 1)
	go func() {
		clients, err := r.build(ctx, clusterID)
		ch <- buildResult{clients: clients, err: err}
	}()

	select {
	case res := <-ch:
		return res.clients, res.err
	case <-ctx.Done():
		return nil, &ClientError{
			ClusterID: clusterID,
			Stage:     StageConnectivity,
			Reason:    "client construction timed out",
			Err: &ConnectivityTimeoutError{
				ClusterID: clusterID,
				Timeout:   r.timeout,
				Err:       ctx.Err(),
			},
		}
	}
}

func (r *Resolver) build(ctx context.Context, clusterID string) (*Clients, error) {
	logger := logging.WithClusterID(r.logger, clusterID)

	rec, err := r.records.Get(ctx, clusterID)
	if err != nil {
		reason := "registry lookup failed"
		if errors.Is(err, registry.ErrNotFound) {
			reason = "cluster is not registered"
		}
		return nil, &ClientError{ClusterID: clusterID, Stage: StageLookup, Reason: reason, Err: err}
	}

	path, err := r.paths.ValidatePath(rec.CredentialPath)
	if err != nil {
		logger.Warn("Credential path rejected", logging.Path(rec.CredentialPath), logging.Err(err))
		return nil, &ClientError{ClusterID: clusterID, Stage: StageCredential, Reason: "credential path is not inside the vault", Err: err}
	}

	config, err := LoadRESTConfig(path, rec.ContextName)
	if err != nil {
		return nil, &ClientError{ClusterID: clusterID, Stage: StageConfig, Reason: "failed to load credential file", Err: err}
	}
	ApplyConnectivityConfig(config, r.connectivity)

	clients, err := r.factory(ctx, rec, config)
	if err != nil {
		return nil, &ClientError{ClusterID: clusterID, Stage: StageClient, Reason: "failed to create client", Err: err}
	}

	if r.probe {
		if err := CheckConnectivity(ctx, clusterID, config, r.connectivity); err != nil {
			logger.Debug("Connectivity check failed", logging.Host(config.Host), logging.Err(err))
			return nil, &ClientError{ClusterID: clusterID, Stage: StageConnectivity, Reason: "cluster is unreachable", Err: err}
		}
	}

	logger.Debug("Created cluster client", logging.Context(rec.ContextName), logging.Host(config.Host))
	return clients, nil
}

// LoadRESTConfig reads the kubeconfig at path and builds a rest.Config for
// contextName. An empty contextName selects the file's current context.
func LoadRESTConfig(path, contextName string) (*rest.Config, error) {
	rules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: path}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build client config for context %q: %w", contextName, err)
	}
	return config, nil
}
