package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "ENV", "LOG_LEVEL", "DATABASE_URL", "REDIS_HOST", "REDIS_PORT",
		"KAFKA_BROKERS", "KAFKA_TOPIC", "KAFKA_ENABLED", "PROMETHEUS_ENABLED",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "VECTOR_DIMENSION",
		"MILVUS_ADDRESS", "MILVUS_USERNAME", "MILVUS_PASSWORD",
		"KNOWLEDGE_KNOWLEDGE_TOP_K",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestConfigLoader_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewConfigLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 1536, cfg.Knowledge.VectorDimension)
	assert.Equal(t, 3, cfg.Knowledge.TopK)
	assert.Equal(t, 1, cfg.Knowledge.MaxParallel)
	assert.Equal(t, "paragraph", cfg.Knowledge.Splitter.Strategy)
	assert.Equal(t, "milvus", cfg.Knowledge.VectorStore.Provider)
	assert.Equal(t, "doc_vectors", cfg.Knowledge.VectorStore.Milvus.Collection)
	assert.Equal(t, 1024, cfg.Knowledge.VectorStore.Milvus.NList)
	assert.Equal(t, 2, cfg.Knowledge.VectorStore.Milvus.Shards)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestConfigLoader_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgresql://u:p@db:5432/kb")
	t.Setenv("MILVUS_ADDRESS", "milvus:19530")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("VECTOR_DIMENSION", "768")
	t.Setenv("KNOWLEDGE_KNOWLEDGE_TOP_K", "5")

	cfg, err := NewConfigLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "postgresql://u:p@db:5432/kb", cfg.Database.URL)
	assert.Equal(t, "milvus:19530", cfg.Knowledge.VectorStore.Milvus.Address)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache", cfg.Redis.Host)
	assert.Equal(t, 768, cfg.Knowledge.VectorDimension)
	assert.Equal(t, 5, cfg.Knowledge.TopK)
}

func TestConfigLoader_FileAndValidation(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
knowledge:
  splitter:
    strategy: sentence
`), 0o644))
	t.Setenv("CONFIG_FILE", path)

	_, err := NewConfigLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestConfigLoader_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := NewConfigLoader().Load()
	assert.Error(t, err)
}

func TestLoadConfigSetsGlobal(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "test")

	require.NoError(t, LoadConfig())
	require.NotNil(t, GetAppConfig())
	assert.Equal(t, "test", GetAppConfig().Server.Env)
}
