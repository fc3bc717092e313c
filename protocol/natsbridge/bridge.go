package natsbridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/agentgraph/addon"
	"github.com/c360/agentgraph/errors"
)

// Addon names registered by this package.
const (
	ProtocolName  = "nats"
	ExtensionName = "nats_bridge"
)

// Config configures a NATS connection. The JSON shape matches the app
// property file's nats section.
type Config struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	// MaxReconnects caps reconnection attempts; -1 retries forever.
	MaxReconnects   int `json:"max_reconnects,omitempty"`
	ReconnectWaitMS int `json:"reconnect_wait_ms,omitempty"`
}

// Validate checks the connection configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NATSBridge", "Validate", "url required")
	}
	return nil
}

func (c *Config) clientName() string {
	if c.Name != "" {
		return c.Name
	}
	return "agentgraph"
}

func (c *Config) reconnectWait() time.Duration {
	if c.ReconnectWaitMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.ReconnectWaitMS) * time.Millisecond
}

// connect dials NATS with retry-on-failed-connect, so a temporarily absent
// server does not fail startup; the connection establishes in the background.
func connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.clientName()),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.reconnectWait()),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "NATSBridge", "connect",
			fmt.Sprintf("dial %s", cfg.URL))
	}
	return conn, nil
}

// Protocol owns the app-level NATS connection.
type Protocol struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Conn returns the underlying connection.
func (p *Protocol) Conn() *nats.Conn { return p.conn }

// Connected reports whether the connection is currently established. With
// retry-on-failed-connect the connection may still be dialing after the
// protocol instantiates.
func (p *Protocol) Connected() bool { return p.conn != nil && p.conn.IsConnected() }

// Close drains and closes the connection.
func (p *Protocol) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain", "error", err)
		p.conn.Close()
	}
}

// Register adds the NATS protocol and bridge extension addons to the
// registry.
func Register(reg *addon.Registry) error {
	err := reg.Register(&addon.Registration{
		Kind: addon.KindProtocol,
		Name: ProtocolName,
		Factory: func(rawConfig json.RawMessage, deps addon.Dependencies) (any, addon.DestroyFunc, error) {
			var cfg Config
			if err := json.Unmarshal(rawConfig, &cfg); err != nil {
				return nil, nil, errors.WrapInvalid(err, "NATSBridge", "Register", "protocol config decode")
			}
			if err := cfg.Validate(); err != nil {
				return nil, nil, err
			}

			logger := deps.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger = logger.With("component", "nats")

			conn, err := connect(cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			p := &Protocol{conn: conn, logger: logger}
			return p, p.Close, nil
		},
	})
	if err != nil {
		return err
	}

	return reg.Register(&addon.Registration{
		Kind:     addon.KindExtension,
		Name:     ExtensionName,
		Manifest: bridgeManifest,
		Factory: func(rawConfig json.RawMessage, deps addon.Dependencies) (any, addon.DestroyFunc, error) {
			cfg, err := parseBridgeConfig(rawConfig)
			if err != nil {
				return nil, nil, err
			}
			return &BridgeExtension{cfg: cfg}, nil, nil
		},
	})
}

var bridgeManifest = addon.Manifest{
	Kind:    addon.KindExtension,
	Name:    ExtensionName,
	Version: "0.1.0",
	API: addon.MessageAPI{
		DataIn: []addon.MessageSchema{{
			Name: "*",
		}},
		DataOut: []addon.MessageSchema{{
			Name: "nats_message",
			Property: map[string]addon.PropertySchema{
				"subject": {Type: "string"},
			},
		}},
		CmdIn: []addon.MessageSchema{{
			Name: "publish",
			Property: map[string]addon.PropertySchema{
				"subject": {Type: "string"},
				"payload": {Type: "string"},
			},
			Required: []string{"subject"},
		}},
	},
}
