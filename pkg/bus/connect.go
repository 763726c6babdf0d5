package bus

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const connectLogPrefix = "bus:connect"

// Connection defaults, used when a ConnectConfig field is zero.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultReconnectWait  = 2 * time.Second
	defaultMaxReconnects  = 60
)

// ConnectConfig tunes the COMMS connection. Zero fields fall back to the
// package defaults.
type ConnectConfig struct {
	URL           string
	Name          string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

// Connect creates a COMMS connection.
func Connect(cfg ConnectConfig) (*comms.Conn, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultConnectTimeout
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaultReconnectWait
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}

	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", connectLogPrefix, cfg.URL, cfg.Name))

	nc, err := comms.Connect(cfg.URL,
		comms.Name(cfg.Name),
		comms.Timeout(cfg.Timeout),
		comms.ReconnectWait(cfg.ReconnectWait),
		comms.MaxReconnects(cfg.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", connectLogPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", connectLogPrefix, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS connection closed", connectLogPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", connectLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", connectLogPrefix, nc.ConnectedUrl()))
	return nc, nil
}
