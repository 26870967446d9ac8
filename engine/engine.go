// Package engine orchestrates backup and restore operations against a device
// session: chunked sequential transfers, integrity verification at every
// boundary, and atomic publication into the catalog.
package engine

import (
	"flashvault/catalog"
	"flashvault/datamodel/partition"
	"flashvault/device"
	"flashvault/device/romclient"

	log "github.com/sirupsen/logrus"
)

// DefaultChunkSize is the per-transfer unit when the config doesn't override
// it. Sized well below the ROM client frame limit.
const DefaultChunkSize = 4096

// Progress is a point-in-time snapshot handed to the progress callback after
// every chunk. The callback runs synchronously between chunks and must not
// reenter the engine.
type Progress struct {
	Phase       string // "read", "write" or "verify"
	Chunk       int
	TotalChunks int
	Bytes       uint64
	TotalBytes  uint64
}

type ProgressFunc func(Progress)

// ConfirmFunc asks the operator for explicit consent before a destructive
// operation. Returning false or an error declines.
type ConfirmFunc func(prompt string) (bool, error)

type Engine struct {
	session  *device.Session
	catalog  *catalog.Catalog
	table    *partition.Table
	chunk    uint64
	progress ProgressFunc
}

type Option func(*Engine)

// WithChunkSize sets the transfer unit for reads, writes and verification.
// Values above the ROM client frame limit are clamped; a chunk that cannot
// fit in a single frame would fail every transfer.
func WithChunkSize(size uint64) Option {
	return func(e *Engine) {
		if size == 0 {
			return
		}
		if size > romclient.MaxTransfer {
			log.Warnf("Chunk size %d exceeds the %d byte frame limit, clamping", size, romclient.MaxTransfer)
			size = romclient.MaxTransfer
		}
		e.chunk = size
	}
}

// WithProgress installs a callback invoked synchronously between chunks.
func WithProgress(f ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = f
	}
}

func New(session *device.Session, cat *catalog.Catalog, table *partition.Table, opts ...Option) *Engine {
	e := &Engine{
		session: session,
		catalog: cat,
		table:   table,
		chunk:   DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) report(p Progress) {
	if e.progress != nil {
		e.progress(p)
	}
}

// chunkCount returns how many chunk transfers a byte count needs.
func (e *Engine) chunkCount(total uint64) int {
	return int((total + e.chunk - 1) / e.chunk)
}
