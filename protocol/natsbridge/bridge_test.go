package natsbridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/agentgraph/addon"
	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/extension"
)

func TestRegisterAddsBothAddons(t *testing.T) {
	reg := addon.NewRegistry()
	require.NoError(t, Register(reg))

	_, ok := reg.Lookup(addon.KindProtocol, ProtocolName)
	assert.True(t, ok)

	ext, ok := reg.Lookup(addon.KindExtension, ExtensionName)
	require.True(t, ok)
	assert.Equal(t, ExtensionName, ext.Manifest.Name)

	err := Register(reg)
	assert.ErrorIs(t, err, errors.ErrDuplicateRegistration)
}

func TestConfigValidation(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), errors.ErrMissingConfig)

	cfg.URL = "nats://localhost:4222"
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, "agentgraph", cfg.clientName())
	cfg.Name = "edge-1"
	assert.Equal(t, "edge-1", cfg.clientName())

	assert.Equal(t, 2*time.Second, cfg.reconnectWait())
	cfg.ReconnectWaitMS = 250
	assert.Equal(t, 250*time.Millisecond, cfg.reconnectWait())
}

func TestParseBridgeConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"publish only", `{"url": "nats://localhost:4222", "publish_subject": "out"}`, false},
		{"subscribe only", `{"url": "nats://localhost:4222", "subscribe_subject": "in"}`, false},
		{"missing url", `{"publish_subject": "out"}`, true},
		{"no subjects", `{"url": "nats://localhost:4222"}`, true},
		{"malformed json", `{`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := parseBridgeConfig(json.RawMessage(tc.raw))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "nats_message", cfg.InboundName, "inbound name defaults")
		})
	}
}

func TestExtensionFactoryProducesExtension(t *testing.T) {
	reg := addon.NewRegistry()
	require.NoError(t, Register(reg))

	handle, err := reg.Instantiate(addon.KindExtension, ExtensionName,
		json.RawMessage(`{"url": "nats://localhost:4222", "publish_subject": "telemetry"}`),
		addon.Dependencies{})
	require.NoError(t, err)
	defer handle.Destroy()

	_, ok := handle.Instance().(extension.Extension)
	assert.True(t, ok)
}

func TestExtensionFactoryRejectsBadProperty(t *testing.T) {
	reg := addon.NewRegistry()
	require.NoError(t, Register(reg))

	_, err := reg.Instantiate(addon.KindExtension, ExtensionName,
		json.RawMessage(`{"url": ""}`), addon.Dependencies{})
	assert.Error(t, err)
}

func TestProtocolConnectedBeforeDial(t *testing.T) {
	var p Protocol
	assert.False(t, p.Connected(), "a protocol without a connection is not connected")
}

func TestProtocolFactoryRejectsBadConfig(t *testing.T) {
	reg := addon.NewRegistry()
	require.NoError(t, Register(reg))

	_, err := reg.Instantiate(addon.KindProtocol, ProtocolName,
		json.RawMessage(`{}`), addon.Dependencies{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestBridgeManifestSchema(t *testing.T) {
	schema, ok := bridgeManifest.SchemaIn("cmd_in", "publish")
	require.True(t, ok)

	assert.NoError(t, schema.ValidateProperties([]byte(`{"subject": "out", "payload": "hi"}`)))
	assert.Error(t, schema.ValidateProperties([]byte(`{"payload": "hi"}`)), "subject is required")
	assert.Error(t, schema.ValidateProperties([]byte(`{"subject": 7}`)))
}
