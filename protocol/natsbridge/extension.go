package natsbridge

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/extension"
	"github.com/c360/agentgraph/message"
)

// bridgeConfig is the nats_bridge extension's node property shape.
type bridgeConfig struct {
	Config

	// PublishSubject receives every data message routed to the bridge.
	PublishSubject string `json:"publish_subject,omitempty"`
	// SubscribeSubject, when set, is consumed and injected into the graph.
	SubscribeSubject string `json:"subscribe_subject,omitempty"`
	// InboundName is the routing name for injected data messages.
	InboundName string `json:"inbound_name,omitempty"`
}

func parseBridgeConfig(raw json.RawMessage) (bridgeConfig, error) {
	var cfg bridgeConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.WrapInvalid(err, "NATSBridge", "parseBridgeConfig", "property decode")
		}
	}
	if err := cfg.Config.Validate(); err != nil {
		return cfg, err
	}
	if cfg.PublishSubject == "" && cfg.SubscribeSubject == "" {
		return cfg, errors.WrapInvalid(errors.ErrMissingConfig, "NATSBridge", "parseBridgeConfig",
			"bridge needs publish_subject or subscribe_subject")
	}
	if cfg.InboundName == "" {
		cfg.InboundName = "nats_message"
	}
	return cfg, nil
}

// BridgeExtension moves messages between its graph and NATS subjects.
//
// Outbound: data messages routed to the bridge publish their payload to the
// configured subject. A "publish" command publishes to an explicit subject
// and answers with a result. Inbound: subscribed messages re-enter the graph
// as data messages through a task posted to the owning group's mailbox, so
// handlers never run on a NATS callback goroutine.
type BridgeExtension struct {
	extension.DefaultExtension

	cfg  bridgeConfig
	conn *nats.Conn
	sub  *nats.Subscription
}

// OnInit dials NATS. Retry-on-failed-connect keeps graph startup independent
// of server availability.
func (b *BridgeExtension) OnInit(env *extension.Env) error {
	conn, err := connect(b.cfg.Config, env.Log())
	if err != nil {
		return err
	}
	b.conn = conn
	return nil
}

// OnStart subscribes the inbound subject if one is configured.
func (b *BridgeExtension) OnStart(env *extension.Env) error {
	if b.cfg.SubscribeSubject == "" {
		return nil
	}

	sub, err := b.conn.Subscribe(b.cfg.SubscribeSubject, func(m *nats.Msg) {
		subject, payload := m.Subject, m.Data
		env.PostTask(func() {
			data := message.NewData(b.cfg.InboundName)
			data.SetPayload(payload)
			data.Properties().Set("subject", subject)
			if err := env.SendData(data); err != nil {
				env.Log().Warn("inbound nats message not routed", "subject", subject, "error", err)
			}
		})
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSBridge", "OnStart",
			"subscribe "+b.cfg.SubscribeSubject)
	}
	b.sub = sub
	return nil
}

// OnData publishes the message payload to the configured subject. Messages
// without a payload publish their property bag as JSON.
func (b *BridgeExtension) OnData(env *extension.Env, data *message.Data) {
	if b.cfg.PublishSubject == "" {
		env.Log().Warn("data message dropped, bridge has no publish_subject", "name", data.Name())
		return
	}

	payload := data.Payload()
	if len(payload) == 0 {
		encoded, err := json.Marshal(data.Properties())
		if err != nil {
			env.Log().Warn("data properties not encodable", "name", data.Name(), "error", err)
			return
		}
		payload = encoded
	}

	if err := b.conn.Publish(b.cfg.PublishSubject, payload); err != nil {
		env.Log().Warn("nats publish failed",
			"subject", b.cfg.PublishSubject, "name", data.Name(), "error", err)
	}
}

// OnCmd handles the "publish" command: subject and payload from command
// properties, result Ok on publish.
func (b *BridgeExtension) OnCmd(env *extension.Env, cmd *message.Command) {
	if cmd.Name() != "publish" {
		b.DefaultExtension.OnCmd(env, cmd)
		return
	}

	subject := cmd.Properties().GetString("subject", "")
	if subject == "" {
		_ = env.ReturnResult(message.ErrorResultFor(cmd, "publish command needs a subject property"))
		return
	}
	payload := cmd.Properties().GetBytes("payload")
	if payload == nil {
		if s := cmd.Properties().GetString("payload", ""); s != "" {
			payload = []byte(s)
		}
	}

	if err := b.conn.Publish(subject, payload); err != nil {
		_ = env.ReturnResult(message.ErrorResultFor(cmd, err.Error()))
		return
	}
	_ = env.ReturnResult(message.ResultFor(message.StatusOk, cmd))
}

// OnStop unsubscribes the inbound subject.
func (b *BridgeExtension) OnStop(env *extension.Env) {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			env.Log().Warn("nats unsubscribe", "error", err)
		}
		b.sub = nil
	}
}

// OnDeinit closes the connection.
func (b *BridgeExtension) OnDeinit(_ *extension.Env) {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		}
		b.conn = nil
	}
}
