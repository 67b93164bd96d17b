// Package storage provides the package registry's storage layer: the
// Backend contract shared by the local-filesystem and S3 variants, and the
// key scheme that maps a package identity to its archive and member keys.
package storage
