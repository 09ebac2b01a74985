// Package registry persists the list of clusters kubedeck knows about.
//
// Records live in a single sqlite table. Each record points at a credential
// file inside the vault; deleting a record also deletes that file.
package registry
