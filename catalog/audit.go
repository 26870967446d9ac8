package catalog

import (
	"context"
	"io"
	"os"
	"sync"

	"flashvault/bid"
	"flashvault/catalog/flatstore"
	"flashvault/digest"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// auditWorkers bounds the number of artifacts hashed concurrently.
const auditWorkers = 4

// Finding is one problem detected by Audit.
type Finding struct {
	ID      string
	Problem string
}

// Audit sweeps the catalog for broken pairings and checksum divergence:
// indexed records whose artifact file is missing, wrong-sized or fails its
// recorded checksum, and artifact files the index knows nothing about.
// Findings are reported, not repaired.
func (c *Catalog) Audit(ctx context.Context) ([]Finding, error) {
	records, err := c.index.EnumerateByTime()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var findings []Finding
	report := func(id string, problem string) {
		mu.Lock()
		findings = append(findings, Finding{ID: id, Problem: problem})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(auditWorkers)

	for _, md := range records {
		md := md
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			stat, err := os.Stat(c.store.ArtifactPath(&md.ID))
			if err != nil {
				if os.IsNotExist(err) {
					report(md.ID.String(), "artifact file missing")
					return nil
				}
				return err
			}
			if uint64(stat.Size()) != md.ByteSize {
				report(md.ID.String(), "artifact size diverges from metadata")
				return nil
			}

			sum, err := hashArtifact(c.store, &md.ID)
			if err != nil {
				return err
			}
			if sum != md.Checksum {
				report(md.ID.String(), "artifact checksum diverges from metadata")
			}

			has, err := c.store.HasSidecar(&md.ID)
			if err != nil {
				return err
			}
			if !has {
				report(md.ID.String(), "metadata sidecar missing")
				return nil
			}
			side, err := c.store.ReadSidecar(&md.ID)
			if err != nil {
				report(md.ID.String(), "metadata sidecar unreadable")
				return nil
			}
			if !side.ID.Equal(&md.ID) || side.Checksum != md.Checksum {
				report(md.ID.String(), "metadata sidecar diverges from index")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Orphaned artifacts: files present in the store but unknown to the index
	ids, err := c.store.Enumerate()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		has, err := c.index.Has(id)
		if err != nil {
			return nil, err
		}
		if !has {
			report(id.String(), "artifact not present in index")
		}
	}

	log.Infof("Audit finished: %d records checked, %d problems", len(records), len(findings))
	return findings, nil
}

// hashArtifact streams the artifact through the digest writer; audits must
// not load whole-flash captures into memory at once.
func hashArtifact(store *flatstore.Store, id *bid.ID) (digest.Digest, error) {
	f, err := store.OpenArtifact(id)
	if err != nil {
		return digest.Digest{}, err
	}
	defer f.Close()

	w := digest.NewWriter()
	if _, err := io.Copy(w, f); err != nil {
		return digest.Digest{}, err
	}
	return w.Sum(), nil
}
