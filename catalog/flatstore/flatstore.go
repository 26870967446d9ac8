// Package flatstore keeps published artifacts on disk: a raw <id>.bin file
// and a <id>.json metadata sidecar per backup, plus a same-filesystem staging
// directory so publication is a single atomic rename.
package flatstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"flashvault/bid"
	"flashvault/datamodel/backup"

	log "github.com/sirupsen/logrus"
)

const stagingDir = ".staging"

type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	basePath = filepath.Clean(basePath)

	if err := ensureDir(basePath); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Join(basePath, stagingDir)); err != nil {
		return nil, err
	}

	log.Infof("Opened artifact store at %s", basePath)

	return &Store{basePath: basePath}, nil
}

// ensureDir checks if a directory exists at the given path, and if not, creates it.
func ensureDir(path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(path, 0755)
		}
		return err
	}
	if !stat.IsDir() {
		return &os.PathError{Op: "ensureDir", Path: path, Err: os.ErrExist}
	}
	return nil
}

// TempFile creates a staging file for an artifact under construction. It
// lives on the same filesystem as the published artifacts, so Ingest can
// move it into place with an atomic rename.
func (s *Store) TempFile() (*os.File, error) {
	return os.CreateTemp(filepath.Join(s.basePath, stagingDir), "backup-*.part")
}

// ArtifactPath returns the path of a published artifact file.
func (s *Store) ArtifactPath(id *bid.ID) string {
	return filepath.Join(s.basePath, id.String()+".bin")
}

// SidecarPath returns the path of a published metadata sidecar.
func (s *Store) SidecarPath(id *bid.ID) string {
	return filepath.Join(s.basePath, id.String()+".json")
}

// Ingest publishes a verified staging file as the artifact for md.ID and
// writes its metadata sidecar next to it. The artifact rename is the
// publication point; if the sidecar cannot be written the artifact is backed
// out so no unpaired file remains.
func (s *Store) Ingest(md *backup.Metadata, tmpPath string) error {
	artifactPath := s.ArtifactPath(&md.ID)

	if err := os.Rename(tmpPath, artifactPath); err != nil {
		return err
	}

	if err := s.writeSidecar(md); err != nil {
		if rmErr := os.Remove(artifactPath); rmErr != nil {
			log.Errorf("Failed to back out artifact %s after sidecar failure: %v", artifactPath, rmErr)
		}
		return err
	}

	return nil
}

func (s *Store) writeSidecar(md *backup.Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a crash never leaves a truncated sidecar
	tmp, err := s.TempFile()
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.SidecarPath(&md.ID))
}

func (s *Store) HasArtifact(id *bid.ID) (bool, error) {
	return fileExists(s.ArtifactPath(id))
}

func (s *Store) HasSidecar(id *bid.ID) (bool, error) {
	return fileExists(s.SidecarPath(id))
}

func fileExists(path string) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !stat.IsDir(), nil
}

// ReadArtifact loads the raw artifact bytes.
func (s *Store) ReadArtifact(id *bid.ID) ([]byte, error) {
	return os.ReadFile(s.ArtifactPath(id))
}

// OpenArtifact opens the artifact file for streaming reads.
func (s *Store) OpenArtifact(id *bid.ID) (*os.File, error) {
	return os.Open(s.ArtifactPath(id))
}

// ReadSidecar loads and decodes the metadata sidecar.
func (s *Store) ReadSidecar(id *bid.ID) (*backup.Metadata, error) {
	data, err := os.ReadFile(s.SidecarPath(id))
	if err != nil {
		return nil, err
	}
	md := &backup.Metadata{}
	if err := json.Unmarshal(data, md); err != nil {
		return nil, err
	}
	return md, nil
}

// Remove deletes both files of a backup. It attempts both removals even if
// the first fails and returns the paths it could not remove, so the caller
// can report the residual instead of pretending success.
func (s *Store) Remove(id *bid.ID) (residual []string, err error) {
	for _, path := range []string{s.ArtifactPath(id), s.SidecarPath(id)} {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			residual = append(residual, path)
			err = rmErr
		}
	}
	return residual, err
}

// Enumerate lists the IDs of all artifacts present in the store. Files that
// don't parse as backup IDs are logged and skipped.
func (s *Store) Enumerate() ([]*bid.ID, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		log.Errorf("Error reading artifact store %s for enumeration: %v", s.basePath, err)
		return nil, err
	}

	var ids []*bid.ID
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".bin" {
			continue
		}
		id, parseErr := bid.FromString(name[:len(name)-len(ext)])
		if parseErr != nil {
			log.Warnf("Skipping file %s during enumeration, not a valid backup ID: %v", name, parseErr)
			continue
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// SweepStaging removes leftover staging files, e.g. after a crash mid-backup.
func (s *Store) SweepStaging() error {
	entries, err := os.ReadDir(filepath.Join(s.basePath, stagingDir))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(s.basePath, stagingDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warnf("Failed to sweep staging file %s: %v", path, err)
		} else {
			log.Infof("Swept leftover staging file %s", path)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
