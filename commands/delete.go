package commands

import (
	"context"
	"fmt"

	"flashvault/bid"
	"flashvault/config"

	log "github.com/sirupsen/logrus"
)

// RunDelete removes a backup's artifact, sidecar and index entries.
func RunDelete(ctx context.Context, cfg *config.Config, idStr string) error {
	id, err := bid.FromString(idStr)
	if err != nil {
		return fmt.Errorf("invalid backup ID %q: %w", idStr, err)
	}

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	if err := cat.Delete(id); err != nil {
		return err
	}

	log.Infof("Deleted backup %s", id.String())
	return nil
}
