package peer

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-share/internal/logger"
)

const (
	ControlUDP = "udp"
	ControlTCP = "tcp"

	DefaultTimeout     = 5 * time.Second
	DefaultDownloadDir = "downloads"
)

// Config describes how a peer talks to its tracker.
type Config struct {
	PeerID      string
	TrackerAddr string

	// Control selects the control channel: ControlUDP (default) or ControlTCP.
	Control string
	Timeout time.Duration
	Logger  *logrus.Logger
}

func (c Config) withDefaults() Config {
	if c.Control == "" {
		c.Control = ControlUDP
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.NewLogger()
	}
	return c
}

type NodeConfig struct {
	Config

	// ListenAddr is where the transfer server listens, ":0" by default.
	ListenAddr  string
	DownloadDir string
	Workers     int

	NewProgress func(name string, size int64) io.Writer
}

func (c NodeConfig) withDefaults() NodeConfig {
	c.Config = c.Config.withDefaults()
	if c.ListenAddr == "" {
		c.ListenAddr = ":0"
	}
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	return c
}
