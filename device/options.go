package device

import "time"

// Config holds the session transfer policy.
type Config struct {
	// BaudRate for the serial link
	BaudRate int

	// Retries is the number of additional attempts after a failed transfer
	Retries int

	// RetryBackoff is the base delay between attempts; the actual delay is
	// jittered around this value
	RetryBackoff time.Duration

	// TransferTimeout bounds each individual transfer attempt
	TransferTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		BaudRate:        921600,
		Retries:         3,
		RetryBackoff:    250 * time.Millisecond,
		TransferTimeout: 3 * time.Second,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) Option {
	return func(c *Config) {
		if baud > 0 {
			c.BaudRate = baud
		}
	}
}

// WithRetries sets the retry budget for each transfer.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithRetryBackoff sets the base delay between transfer attempts.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(c *Config) {
		if backoff >= 0 {
			c.RetryBackoff = backoff
		}
	}
}

// WithTransferTimeout bounds each individual transfer attempt.
func WithTransferTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.TransferTimeout = timeout
		}
	}
}
