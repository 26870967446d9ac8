package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"flashvault/catalog"
	"flashvault/config"
	"flashvault/datamodel/partition"
	"flashvault/device"
	"flashvault/engine"
	"flashvault/helper/timer"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func openSession(cfg *config.Config) (*device.Session, error) {
	return device.Open(cfg.Serial.Port,
		device.WithBaudRate(cfg.Serial.BaudRate),
		device.WithRetries(cfg.Transfer.Retries),
		device.WithRetryBackoff(cfg.RetryBackoff()),
		device.WithTransferTimeout(cfg.TransferTimeout()),
	)
}

func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.Open(cfg.Catalog.ArtifactsPath, cfg.Catalog.IndexPath)
}

func buildEngine(sess *device.Session, cat *catalog.Catalog, cfg *config.Config, tracker *progressTracker) *engine.Engine {
	return engine.New(sess, cat, partition.NewTable(cfg.Partitions),
		engine.WithChunkSize(cfg.Transfer.ChunkSize),
		engine.WithProgress(tracker.update),
	)
}

// progressTracker records the engine's per-chunk progress callbacks so the
// periodic ticker can log a summary without reentering the engine.
type progressTracker struct {
	mu   sync.Mutex
	last engine.Progress
}

func (p *progressTracker) update(pr engine.Progress) {
	p.mu.Lock()
	p.last = pr
	p.mu.Unlock()
}

func (p *progressTracker) log(ctx context.Context) error {
	p.mu.Lock()
	pr := p.last
	p.mu.Unlock()

	if pr.TotalBytes == 0 {
		return nil
	}
	log.Infof("Progress: %s chunk %d/%d, %d/%d bytes (%.1f%%)",
		pr.Phase, pr.Chunk, pr.TotalChunks, pr.Bytes, pr.TotalBytes,
		100*float64(pr.Bytes)/float64(pr.TotalBytes))
	return nil
}

// runWithProgress runs a long engine operation alongside a jittered ticker
// that logs periodic progress summaries. The ticker stops when the operation
// finishes.
func runWithProgress(ctx context.Context, tracker *progressTracker, op func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	tctx, stop := context.WithCancel(gctx)

	g.Go(func() error {
		defer stop()
		return op(gctx)
	})
	g.Go(func() error {
		err := timer.RunWithTicker(tctx, &timer.Interval{Duration: 5 * time.Second, Jitter: 500 * time.Millisecond}, tracker.log)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// promptConfirm asks on the terminal; anything but an explicit yes declines.
func promptConfirm(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes", nil
}
