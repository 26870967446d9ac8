package catalog

import (
	"errors"
	"fmt"
	"strings"

	"flashvault/bid"
)

var ErrNotFound = errors.New("backup not found")

// PairingError reports a broken artifact/metadata pair: one half of a backup
// exists without the other, or a delete left residual files behind.
type PairingError struct {
	ID              *bid.ID
	MissingArtifact bool
	MissingMetadata bool
	Residual        []string
}

func (e *PairingError) Error() string {
	var parts []string
	if e.MissingArtifact {
		parts = append(parts, "artifact file missing")
	}
	if e.MissingMetadata {
		parts = append(parts, "metadata missing")
	}
	if len(e.Residual) > 0 {
		parts = append(parts, fmt.Sprintf("residual files: %s", strings.Join(e.Residual, ", ")))
	}
	if len(parts) == 0 {
		parts = append(parts, "artifact/metadata pairing broken")
	}
	return fmt.Sprintf("backup %s: %s", e.ID.String(), strings.Join(parts, "; "))
}
