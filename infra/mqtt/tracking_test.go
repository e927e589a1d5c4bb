package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "fleet/tracking", cfg.TopicBase)
	assert.Equal(t, "dispatch-engine", cfg.ClientID)

	cfg = Config{TopicBase: "custom/base", ClientID: "me"}
	cfg.SetDefaults()
	assert.Equal(t, "custom/base", cfg.TopicBase)
	assert.Equal(t, "me", cfg.ClientID)
}

func TestClientOptionsCredentials(t *testing.T) {
	opts, err := newClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "c", Username: "u", Password: "p"})
	assert.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, opts.AutoReconnect)
}

func TestClientOptionsTLSRequiresFiles(t *testing.T) {
	_, err := newClientOptions(Config{Broker: "ssl://localhost:8883", UseTLS: true})
	assert.Error(t, err)
}
