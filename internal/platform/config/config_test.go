package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("REGISTRY_CALL_TIMEOUT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KYB_ADDR", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 12*time.Second, cfg.Registry.CallTimeout)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "kyb.audit", cfg.Kafka.AuditTopic)
}

func TestFromEnv_ClampsCallTimeout(t *testing.T) {
	t.Setenv("REGISTRY_CALL_TIMEOUT", "1s")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Registry.CallTimeout)

	t.Setenv("REGISTRY_CALL_TIMEOUT", "1m")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Registry.CallTimeout)
}

func TestFromEnv_ParsesLists(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnv_RejectsBadDuration(t *testing.T) {
	t.Setenv("EPISODE_TIMEOUT", "soon")
	_, err := FromEnv()
	assert.Error(t, err)
}
