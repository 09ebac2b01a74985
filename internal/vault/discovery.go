package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/giantswarm/kubedeck/internal/logging"
)

// MaxDiscoveryDepth bounds folder discovery. The folder passed in is depth 0;
// directories deeper than this are not entered.
const MaxDiscoveryDepth = 8

// DiscoveredContext describes one context found in a kubeconfig file.
type DiscoveredContext struct {
	ContextName string `json:"contextName"`
	ClusterName string `json:"clusterName"`
	UserName    string `json:"userName"`
	Namespace   string `json:"namespace,omitempty"`
	SourceFile  string `json:"sourceFile"`
}

// DiscoverContextsInFile lists the contexts of a single kubeconfig file,
// sorted by context name.
func (v *Vault) DiscoverContextsInFile(path string) ([]DiscoveredContext, error) {
	return discoverInFile(path)
}

// DiscoverContextsInFolder walks root and returns the contexts of every
// parseable kubeconfig beneath it. Symlinks are never followed, hidden
// directories and node_modules are skipped and files that fail to parse are
// ignored.
func (v *Vault) DiscoverContextsInFolder(root string) ([]DiscoveredContext, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &CredentialError{Path: root, Reason: "cannot access folder", NotFound: os.IsNotExist(err), Err: err}
	}
	if !info.IsDir() {
		return nil, &CredentialError{Path: root, Reason: "not a directory"}
	}

	var found []DiscoveredContext
	v.walk(root, 0, &found)
	return found, nil
}

func (v *Vault) walk(dir string, depth int, found *[]DiscoveredContext) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		v.logger.Debug("Skipping unreadable directory", logging.Path(dir), logging.Err(err))
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		// ReadDir reports the link itself, so symlinked directories and
		// files both show up here with ModeSymlink set.
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		if entry.IsDir() {
			if skipDir(entry.Name()) || depth+1 > v.maxDepth {
				continue
			}
			v.walk(path, depth+1, found)
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		contexts, err := discoverInFile(path)
		if err != nil {
			v.logger.Debug("Skipping file that is not a kubeconfig", logging.Path(path), logging.Err(err))
			continue
		}
		*found = append(*found, contexts...)
	}
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

func discoverInFile(path string) ([]DiscoveredContext, error) {
	cfg, err := loadKubeconfig(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	out := make([]DiscoveredContext, 0, len(cfg.Contexts))
	for name, kctx := range cfg.Contexts {
		if kctx == nil {
			continue
		}
		out = append(out, DiscoveredContext{
			ContextName: name,
			ClusterName: kctx.Cluster,
			UserName:    kctx.AuthInfo,
			Namespace:   kctx.Namespace,
			SourceFile:  abs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ContextName < out[j].ContextName
	})
	return out, nil
}
