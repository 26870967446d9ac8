package device

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"flashvault/datamodel/chip"
	"flashvault/device/romclient"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// One live session per port. The serial link is an exclusively-owned resource
// for the duration of an operation, so a second Open on the same port fails
// with ErrPortBusy instead of corrupting an in-flight transfer.
var sessionsMu sync.Mutex
var sessions = make(map[string]*Session)

// Session is an open download-mode connection to a single device. All flash
// transfers go through the retry/backoff/timeout policy configured at Open
// time; the Programmer underneath sees only individual attempts.
type Session struct {
	port string
	prog Programmer
	cfg  Config

	mu   sync.Mutex
	info *chip.Info
}

// Open dials the serial port, performs the download-mode handshake and
// returns a live Session. The port stays claimed until Close.
func Open(port string, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	sp, err := serial.Open(port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, &ConnectError{Port: port, Err: err}
	}
	// The ROM client does framed lock-step reads; a stuck device must not
	// block forever underneath the session's own attempt timeout.
	if err := sp.SetReadTimeout(cfg.TransferTimeout); err != nil {
		sp.Close()
		return nil, &ConnectError{Port: port, Err: err}
	}

	sess, err := NewSession(port, romclient.New(sp), opts...)
	if err != nil {
		sp.Close()
		return nil, err
	}
	return sess, nil
}

// NewSession claims the port and performs the handshake over an existing
// Programmer. Open uses it with the ROM client; tests use it with fakes.
func NewSession(port string, prog Programmer, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	sessionsMu.Lock()
	if _, busy := sessions[port]; busy {
		sessionsMu.Unlock()
		return nil, ErrPortBusy
	}
	s := &Session{port: port, prog: prog, cfg: cfg}
	sessions[port] = s
	sessionsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TransferTimeout)
	defer cancel()

	if err := prog.Handshake(ctx); err != nil {
		s.release()
		if errors.Is(err, romclient.ErrNotSynced) {
			return nil, ErrWrongBootMode
		}
		return nil, &ConnectError{Port: port, Err: err}
	}

	log.Infof("Opened download-mode session on %s", port)
	return s, nil
}

func (s *Session) release() {
	sessionsMu.Lock()
	delete(sessions, s.port)
	sessionsMu.Unlock()
}

func (s *Session) Port() string {
	return s.port
}

// ChipInfo returns the device identification, reading it from the device on
// first call and serving the cached copy afterwards.
func (s *Session) ChipInfo(ctx context.Context) (*chip.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info != nil {
		return s.info, nil
	}

	var info *chip.Info
	err := s.withRetry(ctx, "read", 0, func(actx context.Context) error {
		var err error
		info, err = s.prog.ChipInfo(actx)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Device identified: %s", info.String())
	s.info = info
	return info, nil
}

// ReadFlash reads length bytes starting at offset, retrying individual
// attempts within the configured budget.
func (s *Session) ReadFlash(ctx context.Context, offset uint64, length uint64) ([]byte, error) {
	var data []byte
	err := s.withRetry(ctx, "read", offset, func(actx context.Context) error {
		var err error
		data, err = s.prog.ReadFlash(actx, offset, length)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFlash writes data starting at offset, retrying individual attempts
// within the configured budget.
func (s *Session) WriteFlash(ctx context.Context, offset uint64, data []byte) error {
	return s.withRetry(ctx, "write", offset, func(actx context.Context) error {
		return s.prog.WriteFlash(actx, offset, data)
	})
}

// EraseFlash erases the whole chip. Erase can take tens of seconds, so it
// gets a widened attempt timeout.
func (s *Session) EraseFlash(ctx context.Context) error {
	return s.withRetry(ctx, "erase", 0, func(actx context.Context) error {
		return s.prog.EraseFlash(actx)
	})
}

// Close releases the port claim and the underlying transport.
func (s *Session) Close() error {
	s.release()
	log.Infof("Closed session on %s", s.port)
	return s.prog.Close()
}

// withRetry runs one transfer attempt at a time, each bounded by the attempt
// timeout, sleeping a jittered backoff between attempts. Retries happen here
// and nowhere else; an exhausted budget surfaces as an IOError carrying the
// transfer offset. A cancelled parent context ends the loop immediately.
func (s *Session) withRetry(ctx context.Context, op string, offset uint64, f func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			log.Warnf("Flash %s at offset 0x%x failed (attempt %d/%d): %v", op, offset, attempt, s.cfg.Retries+1, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered(s.cfg.RetryBackoff)):
			}
		}

		timeout := s.cfg.TransferTimeout
		if op == "erase" {
			timeout = 10 * s.cfg.TransferTimeout
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		err = f(actx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &IOError{Op: op, Offset: offset, Err: err}
}

// jittered spreads the backoff over [d/2, 3d/2) so lock-step retry storms
// against a wedged device don't all land at once.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
