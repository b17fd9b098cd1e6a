package tracker

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBatchSize   = 16
	DefaultIdleTimeout = 2 * time.Minute
)

type Config struct {
	// Addr is the UDP address for datagram control messages.
	Addr string
	// StreamAddr, when set, also serves length-prefixed control messages over TCP.
	StreamAddr string
	// Journal receives every handled request. Optional.
	Journal Recorder
	Logger  *logrus.Logger
	// IdleTimeout closes stream connections that send nothing for this long.
	IdleTimeout time.Duration
	// BatchSize is how many datagrams one read may return.
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}
