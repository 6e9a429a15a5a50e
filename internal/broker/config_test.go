package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsToMemoryBackend(t *testing.T) {
	br, err := New(Config{})
	require.NoError(t, err)
	_, ok := br.(*MemoryBroker)
	assert.True(t, ok)
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNew_SaramaRequiresBootstrapServers(t *testing.T) {
	_, err := New(Config{Backend: "sarama"})
	assert.Error(t, err)
}
