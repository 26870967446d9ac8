package romclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"flashvault/datamodel/chip"

	log "github.com/sirupsen/logrus"
)

// syncPayload is the download-mode sync pattern: a recognizable preamble
// followed by a run of 0x55 bytes the loader uses for baud detection.
var syncPayload = append([]byte{0x07, 0x07, 0x12, 0x20}, bytes.Repeat([]byte{0x55}, 32)...)

// Client implements device.Programmer over any byte-stream transport,
// typically a serial port. Calls are serialized internally; the protocol has
// no frame multiplexing, so concurrent commands would interleave on the wire.
// A single goroutine owns the receive side of the transport for the life of
// the client, so a command abandoned on timeout never leaves a second reader
// behind to consume the next command's response.
type Client struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser

	frames    chan frameResult
	done      chan struct{}
	closeOnce sync.Once
}

type frameResult struct {
	status byte
	data   []byte
	err    error
}

func New(conn io.ReadWriteCloser) *Client {
	c := &Client{
		conn:   conn,
		frames: make(chan frameResult, 1),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop is the only reader of conn. Each frame is handed to the command
// waiting on it; a frame whose command already timed out stays buffered and
// is discarded at the start of the next command.
func (c *Client) readLoop() {
	for {
		status, data, err := readFrame(c.conn)
		select {
		case c.frames <- frameResult{status: status, data: data, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			var ferr *FrameError
			if errors.As(err, &ferr) {
				// Garbage on the wire, keep reading
				continue
			}
			// Transport gone
			return
		}
	}
}

// roundTrip sends one command frame and waits for one response frame. A
// cancelled context abandons the wait but not the reader; the late response,
// if it ever arrives, is drained by the next command.
func (c *Client) roundTrip(ctx context.Context, op string, cmd byte, payload []byte) ([]byte, error) {
	frame, err := buildFrame(cmd, payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The protocol is lock-step, so anything buffered at this point belongs
	// to a command that timed out before its response arrived.
	for stale := true; stale; {
		select {
		case res := <-c.frames:
			log.Debugf("Discarding stale frame (status 0x%02x, err %v) before %s", res.status, res.err, op)
		default:
			stale = false
		}
	}

	if _, err := c.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write %s command: %w", op, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.ErrClosedPipe
	case res := <-c.frames:
		if res.err != nil {
			return nil, res.err
		}
		if res.status != StatusOK {
			return nil, &ProtocolError{Op: op, Status: res.status}
		}
		return res.data, nil
	}
}

// Handshake sends the sync pattern and waits for the loader to acknowledge.
// Any framing garbage here means the device is not in download mode.
func (c *Client) Handshake(ctx context.Context) error {
	_, err := c.roundTrip(ctx, "sync", CmdSync, syncPayload)
	if err != nil {
		var ferr *FrameError
		var perr *ProtocolError
		if errors.As(err, &ferr) || errors.As(err, &perr) {
			log.Debugf("Sync failed: %v", err)
			return ErrNotSynced
		}
		return err
	}
	return nil
}

// ChipInfo reads the identification record. The payload is a 32-bit
// little-endian flash size followed by NUL-terminated chip ID and SDK
// version strings.
func (c *Client) ChipInfo(ctx context.Context) (*chip.Info, error) {
	data, err := c.roundTrip(ctx, "chip-info", CmdChipInfo, nil)
	if err != nil {
		return nil, err
	}
	if len(data) < 5 {
		return nil, &FrameError{Reason: fmt.Sprintf("chip-info payload too short: %d bytes", len(data))}
	}

	info := &chip.Info{
		FlashSize: uint64(binary.LittleEndian.Uint32(data[:4])),
	}
	fields := bytes.SplitN(data[4:], []byte{0x00}, 2)
	info.ChipID = string(fields[0])
	if len(fields) == 2 {
		info.SDKVersion = string(bytes.TrimRight(fields[1], "\x00"))
	}
	if info.ChipID == "" {
		return nil, &FrameError{Reason: "chip-info payload missing chip ID"}
	}
	return info, nil
}

// ReadFlash reads length bytes starting at offset. Length is bounded by
// MaxTransfer; chunking is the caller's concern.
func (c *Client) ReadFlash(ctx context.Context, offset uint64, length uint64) ([]byte, error) {
	if length == 0 || length > MaxTransfer {
		return nil, fmt.Errorf("read length %d outside (0, %d]", length, MaxTransfer)
	}

	req := make([]byte, 8)
	binary.LittleEndian.PutUint32(req[0:4], uint32(offset))
	binary.LittleEndian.PutUint32(req[4:8], uint32(length))

	data, err := c.roundTrip(ctx, "read-flash", CmdReadFlash, req)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != length {
		return nil, &FrameError{Reason: fmt.Sprintf("short read: asked 0x%x bytes, got 0x%x", length, len(data))}
	}
	return data, nil
}

// WriteFlash writes data starting at offset.
func (c *Client) WriteFlash(ctx context.Context, offset uint64, data []byte) error {
	if len(data) == 0 || len(data) > MaxTransfer {
		return fmt.Errorf("write length %d outside (0, %d]", len(data), MaxTransfer)
	}

	req := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(req[0:4], uint32(offset))
	req = append(req, data...)

	_, err := c.roundTrip(ctx, "write-flash", CmdWriteFlash, req)
	return err
}

// EraseFlash erases the entire chip.
func (c *Client) EraseFlash(ctx context.Context) error {
	_, err := c.roundTrip(ctx, "erase-chip", CmdEraseChip, nil)
	return err
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}
