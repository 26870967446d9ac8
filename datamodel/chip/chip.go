package chip

import "fmt"

// Info identifies the connected device. It is read once per session, right
// after the download-mode handshake, and never changes while the session is
// open. A copy is embedded in every backup record so a restore can detect
// that an artifact is being pushed to a different chip.
type Info struct {
	ChipID     string `cbor:"1,keyasint" json:"chip_id"`
	FlashSize  uint64 `cbor:"2,keyasint" json:"flash_size"`
	SDKVersion string `cbor:"3,keyasint,omitempty" json:"sdk_version,omitempty"`
}

func (i *Info) String() string {
	return fmt.Sprintf("chip %s, flash %d bytes, sdk %q", i.ChipID, i.FlashSize, i.SDKVersion)
}
