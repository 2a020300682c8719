// Package digest implements persistence for the archive digest record.
//
// The FileRepository stores and loads the SHA-256 hex digest of the last
// processed archive as a single-line text file and exposes a Repository
// interface that the sync pipeline depends on.
package digest
