// Package romclient speaks the framed request/response protocol of the
// download-mode ROM loader over a serial transport. The exchange is strictly
// lock-step: one command frame out, one status frame back, no pipelining.
package romclient

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame layout: SOP(1) CMD/STATUS(1) LEN(2, little-endian) DATA CHK(2,
// little-endian) EOP(1). The checksum is an additive 2's complement over
// CMD, LEN and DATA.
const (
	startOfFrame byte = 0x01
	endOfFrame   byte = 0x17

	headerSize  = 4 // SOP + CMD + LEN
	trailerSize = 3 // CHK + EOP
)

// MaxTransfer is the largest data payload a single frame can carry. Chunk
// sizes above this are split by the caller, not by the client.
const MaxTransfer = 0x8000

// Command codes understood by the ROM loader.
const (
	CmdSync       = 0x05
	CmdChipInfo   = 0x0A
	CmdReadFlash  = 0x10
	CmdWriteFlash = 0x11
	CmdEraseChip  = 0x12
)

// Status codes returned by the ROM loader.
const (
	StatusOK          = 0x00
	StatusBadChecksum = 0x03
	StatusBadCommand  = 0x04
	StatusBadAddress  = 0x05
	StatusFlashFault  = 0x07
	StatusNotSynced   = 0x08
)

// frameChecksum computes the additive 2's complement checksum over the CMD,
// LEN and DATA fields.
func frameChecksum(cmd byte, data []byte) uint16 {
	sum := uint16(cmd)
	sum += uint16(len(data) & 0xFF)
	sum += uint16(len(data) >> 8)
	for _, b := range data {
		sum += uint16(b)
	}
	return 1 + (0xFFFF ^ sum)
}

// buildFrame assembles a complete command frame.
func buildFrame(cmd byte, data []byte) ([]byte, error) {
	if len(data) > 0xFFFF {
		return nil, fmt.Errorf("payload too large for frame: %d bytes", len(data))
	}

	frame := make([]byte, 0, headerSize+len(data)+trailerSize)
	frame = append(frame, startOfFrame, cmd)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))
	frame = append(frame, data...)
	frame = binary.LittleEndian.AppendUint16(frame, frameChecksum(cmd, data))
	frame = append(frame, endOfFrame)
	return frame, nil
}

// readFrame reads one complete frame off the wire and returns its CMD/STATUS
// byte and payload. The serial transport delivers a byte stream, so the frame
// is reassembled with io.ReadFull rather than assumed to arrive in one read.
func readFrame(r io.Reader) (byte, []byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if header[0] != startOfFrame {
		return 0, nil, &FrameError{Reason: fmt.Sprintf("bad start of frame 0x%02x", header[0])}
	}

	status := header[1]
	dataLen := binary.LittleEndian.Uint16(header[2:4])

	rest := make([]byte, int(dataLen)+trailerSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, err
	}

	data := rest[:dataLen]
	chk := binary.LittleEndian.Uint16(rest[dataLen : dataLen+2])
	if rest[len(rest)-1] != endOfFrame {
		return 0, nil, &FrameError{Reason: fmt.Sprintf("bad end of frame 0x%02x", rest[len(rest)-1])}
	}
	if chk != frameChecksum(status, data) {
		return 0, nil, &FrameError{Reason: "frame checksum mismatch"}
	}

	return status, data, nil
}
