//go:build purego || !sqlite_vec

package storage

// Default build: modernc.org/sqlite, no cgo and no vec0 extension. Nearest
// scans the embeddings table and ranks by L2 distance in Go
// (vector_portable.go, vector_ops.go). FTS5 is compiled into modernc, so the
// lexical prefilter behaves as in the cgo build.
//
//   CGO_ENABLED=0 go build ./cmd/hybridrag

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by modernc
	DriverName = "sqlite"

	// VectorExtensionAvailable reports whether vec0 is compiled in
	VectorExtensionAvailable = false

	// BuildMode names this build in status and version output
	BuildMode = "purego"
)
