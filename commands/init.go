package commands

import (
	"context"

	"flashvault/config"

	log "github.com/sirupsen/logrus"
)

// RunInit writes a config file with default settings.
func RunInit(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Save(); err != nil {
		return err
	}
	log.Info("Wrote default config")
	return nil
}
