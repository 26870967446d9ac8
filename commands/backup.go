package commands

import (
	"context"
	"fmt"
	"strconv"

	"flashvault/config"
	"flashvault/datamodel/backup"

	log "github.com/sirupsen/logrus"
)

// RunBackup captures the whole flash, or a single named partition when
// partitionName is non-empty, and prints the resulting backup ID.
func RunBackup(ctx context.Context, cfg *config.Config, partitionName string) error {
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

	var md *backup.Metadata
	err = runWithProgress(ctx, tracker, func(ctx context.Context) error {
		var err error
		if partitionName != "" {
			md, err = eng.BackupPartition(ctx, partitionName)
		} else {
			md, err = eng.BackupFull(ctx)
		}
		return err
	})
	if err != nil {
		return err
	}

	log.Infof("Backup complete: %s (%d bytes)", md.ID.String(), md.ByteSize)
	fmt.Println(md.ID.String())
	return nil
}

// RunBackupRange captures an explicit offset/length range, bypassing the
// named partition table. Offset and length accept decimal or 0x-prefixed hex.
func RunBackupRange(ctx context.Context, cfg *config.Config, name string, offsetStr string, lengthStr string) error {
	offset, err := strconv.ParseUint(offsetStr, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", offsetStr, err)
	}
	length, err := strconv.ParseUint(lengthStr, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid length %q: %w", lengthStr, err)
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

	var md *backup.Metadata
	err = runWithProgress(ctx, tracker, func(ctx context.Context) error {
		var err error
		md, err = eng.BackupRange(ctx, name, offset, length)
		return err
	})
	if err != nil {
		return err
	}

	log.Infof("Backup complete: %s (%d bytes)", md.ID.String(), md.ByteSize)
	fmt.Println(md.ID.String())
	return nil
}
