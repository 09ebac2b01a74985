// Package k8s builds Kubernetes clients for registered clusters and provides
// the read and delete operations the dashboard needs.
//
// A Resolver maps a cluster id to a Clients bundle: it looks the record up
// in the registry, confines the credential path to the vault, loads the
// kubeconfig with clientcmd for the record's context and applies rate
// limits. Results are cached per cluster id in a ClientCache with TTL expiry
// and an LRU bound; concurrent first requests for one cluster share a
// single construction.
//
// The remaining helpers take a kubernetes.Interface so they can run against
// k8s.io/client-go/kubernetes/fake in tests.
package k8s
