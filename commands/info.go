package commands

import (
	"context"
	"fmt"

	"flashvault/config"
	"flashvault/datamodel/partition"

	log "github.com/sirupsen/logrus"
)

// RunChipInfo prints the identification record of the connected device.
func RunChipInfo(ctx context.Context, cfg *config.Config) error {
	sess, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	info, err := sess.ChipInfo(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Chip ID:     %s\n", info.ChipID)
	fmt.Printf("Flash size:  %d bytes (%.1f MiB)\n", info.FlashSize, float64(info.FlashSize)/(1024*1024))
	fmt.Printf("SDK version: %s\n", info.SDKVersion)
	return nil
}

// RunFlashInfo prints the flash size and the configured partition layout,
// validated against the size the chip actually reports.
func RunFlashInfo(ctx context.Context, cfg *config.Config) error {
	sess, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	info, err := sess.ChipInfo(ctx)
	if err != nil {
		return err
	}

	table := partition.NewTable(cfg.Partitions)
	if err := table.Validate(info.FlashSize); err != nil {
		log.Warnf("Configured partition table does not fit this device: %v", err)
	}

	fmt.Printf("Flash size: %d bytes (%.1f MiB)\n\n", info.FlashSize, float64(info.FlashSize)/(1024*1024))
	fmt.Printf("%-12s %-12s %-12s\n", "NAME", "OFFSET", "LENGTH")
	for _, d := range table.Descriptors() {
		fmt.Printf("%-12s 0x%08x   0x%08x\n", d.Name, d.Offset, d.Length)
	}
	return nil
}
