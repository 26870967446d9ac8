// Package catalog is the persistent index of published backups. It pairs the
// on-disk artifact store with the metadata index and enforces the 1:1
// artifact/metadata invariant programmatically instead of by filename
// convention.
package catalog

import (
	"errors"
	"os"
	"sync"

	"flashvault/bid"
	"flashvault/catalog/flatstore"
	"flashvault/catalog/leveldb"
	"flashvault/datamodel/backup"

	log "github.com/sirupsen/logrus"
)

type Catalog struct {
	mu    sync.Mutex
	store *flatstore.Store
	index backup.Index
}

// Open creates or opens a catalog with its artifact store and metadata index
// at the given paths.
func Open(artifactsPath string, indexPath string) (*Catalog, error) {
	store, err := flatstore.New(artifactsPath)
	if err != nil {
		return nil, err
	}

	index, err := leveldb.NewBackupIndex(indexPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	// The index LOCK is held now, so no other process can be mid-backup;
	// leftover staging files can only belong to a crashed run and were
	// never published.
	if err := store.SweepStaging(); err != nil {
		index.Close()
		store.Close()
		return nil, err
	}

	return New(store, index), nil
}

// New assembles a catalog from existing components.
func New(store *flatstore.Store, index backup.Index) *Catalog {
	return &Catalog{store: store, index: index}
}

// TempArtifact creates a staging file for the backup engine. The file lives
// inside the store so the final publication is an atomic same-filesystem
// rename.
func (c *Catalog) TempArtifact() (*os.File, error) {
	return c.store.TempFile()
}

// Register publishes a backup: the staged artifact file is moved into the
// store, the metadata sidecar is written next to it, and both index keys are
// added in one batch. Callable only with a staging file whose checksum
// round-trip already passed; the engine owns the artifact until this point.
func (c *Catalog) Register(md *backup.Metadata, tmpPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Ingest(md, tmpPath); err != nil {
		return err
	}

	if err := c.index.Put(md); err != nil {
		// Back the files out so the store never disagrees with the index
		if residual, rmErr := c.store.Remove(&md.ID); rmErr != nil {
			log.Errorf("Failed to back out %s after index failure, residual files: %v", md.ID.String(), residual)
		}
		return err
	}

	log.Infof("Published backup %s (%d bytes, %d regions)", md.ID.String(), md.ByteSize, len(md.Regions))
	return nil
}

// Find returns the metadata for a backup ID and checks that its artifact
// half is actually present.
func (c *Catalog) Find(id *bid.ID) (*backup.Metadata, error) {
	md, err := c.index.Get(id)
	if errors.Is(err, backup.ErrorNotIndexed) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	has, err := c.store.HasArtifact(id)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, &PairingError{ID: id, MissingArtifact: true}
	}

	return md, nil
}

// List returns all backups, newest first.
func (c *Catalog) List() ([]*backup.Metadata, error) {
	return c.index.EnumerateByTime()
}

// ReadArtifact loads the raw bytes of a published artifact.
func (c *Catalog) ReadArtifact(id *bid.ID) ([]byte, error) {
	return c.store.ReadArtifact(id)
}

// ArtifactPath returns the on-disk location of a published artifact.
func (c *Catalog) ArtifactPath(id *bid.ID) string {
	return c.store.ArtifactPath(id)
}

// Delete removes a backup: index entries first, then both files. If a file
// cannot be removed the residual paths are logged and reported rather than
// silently dropped.
func (c *Catalog) Delete(id *bid.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	has, err := c.index.Has(id)
	if err != nil {
		return err
	}
	hasArtifact, err := c.store.HasArtifact(id)
	if err != nil {
		return err
	}
	if !has && !hasArtifact {
		return ErrNotFound
	}

	if err := c.index.Delete(id); err != nil {
		return err
	}

	if residual, err := c.store.Remove(id); err != nil {
		log.Errorf("Delete %s left residual files: %v (%v)", id.String(), residual, err)
		return &PairingError{ID: id, Residual: residual}
	}

	log.Infof("Deleted backup %s", id.String())
	return nil
}

func (c *Catalog) Close() error {
	err := c.index.Close()
	if serr := c.store.Close(); err == nil {
		err = serr
	}
	return err
}
