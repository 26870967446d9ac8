package commands

import (
	"context"
	"fmt"

	"flashvault/bid"
	"flashvault/config"
	"flashvault/engine"

	log "github.com/sirupsen/logrus"
)

// RunRestore writes a cataloged backup back to the device. force downgrades
// a chip mismatch to a warning; yes skips the interactive confirmation.
func RunRestore(ctx context.Context, cfg *config.Config, idStr string, force bool, yes bool) error {
	id, err := bid.FromString(idStr)
	if err != nil {
		return fmt.Errorf("invalid backup ID %q: %w", idStr, err)
	}

	sess, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	tracker := &progressTracker{}
	eng := buildEngine(sess, cat, cfg, tracker)

	opts := engine.RestoreOptions{
		Force:     force,
		AssumeYes: yes,
		Confirm:   promptConfirm,
	}

	err = runWithProgress(ctx, tracker, func(ctx context.Context) error {
		return eng.Restore(ctx, id, opts)
	})
	if err != nil {
		return err
	}

	log.Infof("Restore complete: %s", id.String())
	return nil
}
