// Package vault owns the on-disk credential store.
//
// The vault is a single owner-only directory holding one kubeconfig per
// registered cluster, named <clusterID>.yaml. Each file contains exactly one
// context, the cluster and the user it references, and has current-context
// set, so a client can be built from it without any further selection.
//
// Every path that the vault writes to or deletes is first passed through
// ValidatePath, which canonicalizes it (symlinks included) and rejects
// anything that does not resolve strictly inside the vault root.
//
// The package also discovers contexts in arbitrary kubeconfig files and
// folders so the GUI can offer them for import.
package vault
