package romclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// loopDevice emulates the ROM loader behind an io.ReadWriteCloser: each
// Write must carry one complete command frame, and the response is queued
// for subsequent Reads. Reads block until a response is available, like a
// real serial port.
type loopDevice struct {
	flash  []byte
	synced bool

	// replyDelay postpones the next response only, simulating a device
	// that answers after the caller has given up waiting.
	replyDelay time.Duration

	out       chan []byte
	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newLoopDevice(size int) *loopDevice {
	d := &loopDevice{
		flash:  make([]byte, size),
		out:    make(chan []byte, 8),
		closed: make(chan struct{}),
	}
	for i := range d.flash {
		d.flash[i] = byte(i * 7)
	}
	return d
}

func (d *loopDevice) respond(status byte, data []byte) {
	frame := []byte{startOfFrame, status}
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))
	frame = append(frame, data...)
	frame = binary.LittleEndian.AppendUint16(frame, frameChecksum(status, data))
	frame = append(frame, endOfFrame)

	if delay := d.replyDelay; delay > 0 {
		d.replyDelay = 0
		time.AfterFunc(delay, func() { d.out <- frame })
		return
	}
	d.out <- frame
}

func (d *loopDevice) Write(p []byte) (int, error) {
	cmd, data, err := readFrame(bytes.NewReader(p))
	if err != nil {
		d.respond(StatusBadChecksum, nil)
		return len(p), nil
	}

	switch cmd {
	case CmdSync:
		d.synced = true
		d.respond(StatusOK, nil)
	case CmdChipInfo:
		payload := binary.LittleEndian.AppendUint32(nil, uint32(len(d.flash)))
		payload = append(payload, []byte("esp32-test\x00v4.4.2")...)
		d.respond(StatusOK, payload)
	case CmdReadFlash:
		off := binary.LittleEndian.Uint32(data[0:4])
		length := binary.LittleEndian.Uint32(data[4:8])
		if int(off)+int(length) > len(d.flash) {
			d.respond(StatusBadAddress, nil)
			break
		}
		d.respond(StatusOK, d.flash[off:off+length])
	case CmdWriteFlash:
		off := binary.LittleEndian.Uint32(data[0:4])
		if int(off)+len(data)-4 > len(d.flash) {
			d.respond(StatusBadAddress, nil)
			break
		}
		copy(d.flash[off:], data[4:])
		d.respond(StatusOK, nil)
	case CmdEraseChip:
		for i := range d.flash {
			d.flash[i] = 0xFF
		}
		d.respond(StatusOK, nil)
	default:
		d.respond(StatusBadCommand, nil)
	}
	return len(p), nil
}

func (d *loopDevice) Read(p []byte) (int, error) {
	if len(d.pending) == 0 {
		select {
		case b := <-d.out:
			d.pending = b
		case <-d.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *loopDevice) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

func TestHandshakeAndChipInfo(t *testing.T) {
	dev := newLoopDevice(1024)
	cli := New(dev)
	defer cli.Close()
	ctx := context.Background()

	if err := cli.Handshake(ctx); err != nil {
		t.Fatal(err)
	}
	if !dev.synced {
		t.Fatal("device never saw the sync command")
	}

	info, err := cli.ChipInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.ChipID != "esp32-test" || info.FlashSize != 1024 || info.SDKVersion != "v4.4.2" {
		t.Fatalf("unexpected chip info: %+v", info)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	dev := newLoopDevice(4096)
	cli := New(dev)
	defer cli.Close()
	ctx := context.Background()

	data, err := cli.ReadFlash(ctx, 16, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, dev.flash[16:80]) {
		t.Fatal("read returned wrong bytes")
	}

	patch := bytes.Repeat([]byte{0xAB}, 32)
	if err := cli.WriteFlash(ctx, 100, patch); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dev.flash[100:132], patch) {
		t.Fatal("write did not land in flash")
	}
}

func TestReadFlashOutOfRange(t *testing.T) {
	dev := newLoopDevice(256)
	cli := New(dev)
	defer cli.Close()

	_, err := cli.ReadFlash(context.Background(), 200, 100)
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Status != StatusBadAddress {
		t.Fatalf("expected StatusBadAddress protocol error, got %v", err)
	}
}

func TestEraseChip(t *testing.T) {
	dev := newLoopDevice(128)
	cli := New(dev)
	defer cli.Close()

	if err := cli.EraseFlash(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i, b := range dev.flash {
		if b != 0xFF {
			t.Fatalf("byte %d not erased: 0x%02x", i, b)
		}
	}
}

func TestLateResponseDoesNotStarveRetry(t *testing.T) {
	dev := newLoopDevice(256)
	cli := New(dev)
	defer cli.Close()

	// The first response arrives only after the first attempt has given up
	dev.replyDelay = 150 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := cli.ReadFlash(ctx, 0, 16); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on the first attempt, got %v", err)
	}

	// The retried command must get its own response; the attempt abandoned
	// above must not leave a reader behind that consumes it
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	data, err := cli.ReadFlash(ctx2, 0, 16)
	if err != nil {
		t.Fatalf("retry failed despite a responsive device: %v", err)
	}
	if !bytes.Equal(data, dev.flash[0:16]) {
		t.Fatal("retry returned wrong bytes")
	}
}

func TestHandshakeAgainstGarbage(t *testing.T) {
	// A device spewing application logs instead of frames
	dev := &garbageDevice{}
	cli := New(dev)
	defer cli.Close()

	err := cli.Handshake(context.Background())
	if !errors.Is(err, ErrNotSynced) {
		t.Fatalf("expected ErrNotSynced, got %v", err)
	}
}

type garbageDevice struct{}

func (d *garbageDevice) Write(p []byte) (int, error) { return len(p), nil }

func (d *garbageDevice) Read(p []byte) (int, error) {
	msg := []byte("I (1234) wifi: connecting...\n")
	n := copy(p, msg)
	return n, nil
}

func (d *garbageDevice) Close() error { return nil }

func TestFrameChecksumRejectsCorruption(t *testing.T) {
	frame, err := buildFrame(CmdReadFlash, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}

	// Flip one payload byte; readFrame must reject the frame
	frame[5] ^= 0xFF
	_, _, err = readFrame(bytes.NewReader(frame))
	var ferr *FrameError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FrameError, got %v", err)
	}
}
