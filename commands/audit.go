package commands

import (
	"context"
	"fmt"

	"flashvault/config"
)

// RunAudit sweeps the catalog for broken artifact/metadata pairings and
// checksum divergence. Findings make the command fail so scripts notice.
func RunAudit(ctx context.Context, cfg *config.Config) error {
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	findings, err := cat.Audit(ctx)
	if err != nil {
		return err
	}

	if len(findings) == 0 {
		fmt.Println("Catalog is consistent")
		return nil
	}

	for _, f := range findings {
		fmt.Printf("%s: %s\n", f.ID, f.Problem)
	}
	return fmt.Errorf("catalog audit found %d problem(s)", len(findings))
}
