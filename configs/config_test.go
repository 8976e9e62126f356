package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DefaultFraudConfig(), cfg.Fraud)
	assert.Equal(t, 168*time.Hour, cfg.Graph.Window)
	assert.Equal(t, 3, cfg.Graph.SmurfThreshold)
	assert.Equal(t, "http://localhost:8000/score_dict", cfg.Scorer.URL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Database.PersistTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_SINGLE_TRANSACTION", "50000.5")
	t.Setenv("MAX_TRANSACTIONS_1MIN", "7")
	t.Setenv("ML_SCORER_TIMEOUT", "750ms")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("GRAPH_SMURF_THRESHOLD", "not-a-number")

	cfg := Load()

	assert.Equal(t, 50000.5, cfg.Fraud.MaxSingleTransaction)
	assert.Equal(t, 7, cfg.Fraud.MaxTransactions1Min)
	assert.Equal(t, 750*time.Millisecond, cfg.Scorer.Timeout)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Graph.SmurfThreshold)
}
