package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"flashvault/datamodel/chip"
	"flashvault/device/romclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProgrammer is an in-memory Programmer with scriptable failures.
type fakeProgrammer struct {
	flash        []byte
	info         chip.Info
	failReads    int // fail this many ReadFlash calls before succeeding
	failWrites   int
	handshakeErr error

	chipInfoCalls int
	readCalls     int
	writeCalls    int
	closed        bool
}

func newFakeProgrammer(size int) *fakeProgrammer {
	f := &fakeProgrammer{
		flash: make([]byte, size),
		info:  chip.Info{ChipID: "esp32-fake", FlashSize: uint64(size), SDKVersion: "v4.4"},
	}
	for i := range f.flash {
		f.flash[i] = byte(i)
	}
	return f
}

func (f *fakeProgrammer) Handshake(ctx context.Context) error {
	return f.handshakeErr
}

func (f *fakeProgrammer) ChipInfo(ctx context.Context) (*chip.Info, error) {
	f.chipInfoCalls++
	info := f.info
	return &info, nil
}

func (f *fakeProgrammer) ReadFlash(ctx context.Context, offset uint64, length uint64) ([]byte, error) {
	f.readCalls++
	if f.failReads > 0 {
		f.failReads--
		return nil, errors.New("injected read fault")
	}
	out := make([]byte, length)
	copy(out, f.flash[offset:offset+length])
	return out, nil
}

func (f *fakeProgrammer) WriteFlash(ctx context.Context, offset uint64, data []byte) error {
	f.writeCalls++
	if f.failWrites > 0 {
		f.failWrites--
		return errors.New("injected write fault")
	}
	copy(f.flash[offset:], data)
	return nil
}

func (f *fakeProgrammer) EraseFlash(ctx context.Context) error {
	for i := range f.flash {
		f.flash[i] = 0xFF
	}
	return nil
}

func (f *fakeProgrammer) Close() error {
	f.closed = true
	return nil
}

func testOpts() []Option {
	return []Option{WithRetries(2), WithRetryBackoff(time.Millisecond), WithTransferTimeout(time.Second)}
}

func TestRetryRecoversFromTransientFaults(t *testing.T) {
	prog := newFakeProgrammer(256)
	prog.failReads = 2 // budget is 1 + 2 retries

	sess, err := NewSession("test-retry", prog, testOpts()...)
	require.NoError(t, err)
	defer sess.Close()

	data, err := sess.ReadFlash(context.Background(), 8, 16)
	require.NoError(t, err)
	assert.Equal(t, prog.flash[8:24], data)
	assert.Equal(t, 3, prog.readCalls)
}

func TestRetryExhaustionYieldsIOError(t *testing.T) {
	prog := newFakeProgrammer(256)
	prog.failWrites = 10

	sess, err := NewSession("test-exhaust", prog, testOpts()...)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.WriteFlash(context.Background(), 0x40, []byte{1, 2, 3})
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "write", ioErr.Op)
	assert.Equal(t, uint64(0x40), ioErr.Offset)
	assert.Equal(t, 3, prog.writeCalls, "one attempt plus two retries")
}

func TestPortExclusivity(t *testing.T) {
	prog := newFakeProgrammer(64)

	sess, err := NewSession("test-busy", prog, testOpts()...)
	require.NoError(t, err)
	defer sess.Close()

	_, err = NewSession("test-busy", newFakeProgrammer(64), testOpts()...)
	assert.ErrorIs(t, err, ErrPortBusy)

	// Closing the first session frees the port
	require.NoError(t, sess.Close())
	sess2, err := NewSession("test-busy", newFakeProgrammer(64), testOpts()...)
	require.NoError(t, err)
	sess2.Close()
}

func TestChipInfoCached(t *testing.T) {
	prog := newFakeProgrammer(64)

	sess, err := NewSession("test-cache", prog, testOpts()...)
	require.NoError(t, err)
	defer sess.Close()

	info1, err := sess.ChipInfo(context.Background())
	require.NoError(t, err)
	info2, err := sess.ChipInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, info1, info2)
	assert.Equal(t, 1, prog.chipInfoCalls)
}

func TestWrongBootMode(t *testing.T) {
	prog := newFakeProgrammer(64)
	prog.handshakeErr = romclient.ErrNotSynced

	_, err := NewSession("test-bootmode", prog, testOpts()...)
	assert.ErrorIs(t, err, ErrWrongBootMode)

	// A failed handshake must release the port claim
	prog2 := newFakeProgrammer(64)
	sess, err := NewSession("test-bootmode", prog2, testOpts()...)
	require.NoError(t, err)
	sess.Close()
}

func TestCancelledContextStopsRetries(t *testing.T) {
	prog := newFakeProgrammer(64)
	prog.failReads = 10

	sess, err := NewSession("test-cancel", prog, testOpts()...)
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sess.ReadFlash(ctx, 0, 8)
	assert.ErrorIs(t, err, context.Canceled)
}
