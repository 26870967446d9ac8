package engine

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// EraseOptions control the consent gate for a chip erase.
type EraseOptions struct {
	AssumeYes bool
	Confirm   ConfirmFunc
}

// Erase wipes the entire flash. It sits behind the same explicit-consent
// gate as restore; without consent the device is never touched.
func (e *Engine) Erase(ctx context.Context, opts EraseOptions) error {
	info, err := e.session.ChipInfo(ctx)
	if err != nil {
		return err
	}

	if !opts.AssumeYes {
		if opts.Confirm == nil {
			return ErrConfirmDeclined
		}
		prompt := fmt.Sprintf("Erase ALL %d bytes of flash on %s? This cannot be undone", info.FlashSize, info.ChipID)
		ok, err := opts.Confirm(prompt)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConfirmDeclined
		}
	}

	log.Warnf("Erasing entire flash on %s", info.ChipID)
	if err := e.session.EraseFlash(ctx); err != nil {
		return err
	}
	log.Infof("Flash erase complete on %s", info.ChipID)
	return nil
}
