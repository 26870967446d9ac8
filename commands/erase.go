package commands

import (
	"context"

	"flashvault/config"
	"flashvault/datamodel/partition"
	"flashvault/engine"

	log "github.com/sirupsen/logrus"
)

// RunErase wipes the entire flash of the connected device, behind the same
// consent gate as restore.
func RunErase(ctx context.Context, cfg *config.Config, yes bool) error {
	sess, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	// Erase needs no catalog access
	eng := engine.New(sess, nil, partition.NewTable(cfg.Partitions))

	err = eng.Erase(ctx, engine.EraseOptions{
		AssumeYes: yes,
		Confirm:   promptConfirm,
	})
	if err != nil {
		return err
	}

	log.Info("Erase complete")
	return nil
}
