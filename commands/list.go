package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flashvault/config"
	"flashvault/datamodel/backup"
)

// RunList prints all cataloged backups, newest first. It needs no device.
func RunList(ctx context.Context, cfg *config.Config) error {
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	list, err := cat.List()
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	fmt.Printf("%-56s %12s  %-20s %s\n", "BACKUP ID", "SIZE", "CREATED", "REGIONS")
	for _, md := range list {
		fmt.Printf("%-56s %12d  %-20s %s\n",
			md.ID.String(), md.ByteSize, md.CreatedAt.Local().Format(time.DateTime), regionSummary(md))
	}
	return nil
}

func regionSummary(md *backup.Metadata) string {
	var names []string
	for i := range md.Regions {
		r := &md.Regions[i]
		if r.Name != "" {
			names = append(names, r.Name)
		} else {
			names = append(names, fmt.Sprintf("0x%x+0x%x", r.Offset, r.Length))
		}
	}
	return strings.Join(names, ",")
}
