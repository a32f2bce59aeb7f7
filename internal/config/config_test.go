package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load(viper.New())
	require.NoError(t, err)

	require.Equal(t, "database.yaml", cfg.DataFile)
	require.Equal(t, "output.txt", cfg.OutputFile)
	require.Equal(t, 20, cfg.ChunkSize)
	require.Equal(t, 5, cfg.TransactionLimit)
	require.Equal(t, 5*time.Second, cfg.SchedulePeriod)
	require.Equal(t, "Forbid", cfg.OverlapPolicy)
	require.Equal(t, "memory", cfg.Repository)
	require.Equal(t, 100, cfg.SeedCount)
	require.True(t, cfg.SeedOnStart)
	require.Equal(t, 30*time.Second, cfg.TaskletTimeout)
	require.False(t, cfg.TraceSpans)
	require.Equal(t, "@every 5s", cfg.Schedule())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BATCH_CHUNK_SIZE", "7")
	t.Setenv("BATCH_CRON_EXPR", "*/10 * * * * *")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, 7, cfg.ChunkSize)
	require.Equal(t, "*/10 * * * * *", cfg.Schedule())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BATCH_CHUNK_SIZE", "0")

	_, err := load(viper.New())
	require.Error(t, err)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BATCH_OVERLAP_POLICY", "Queue")

	_, err := load(viper.New())
	require.Error(t, err)
}
