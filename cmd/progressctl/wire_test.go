package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/config"
	"github.com/youlearn/youlearn-progress/internal/application/command"
	"github.com/youlearn/youlearn-progress/internal/domain/content"
	"github.com/youlearn/youlearn-progress/pkg/keylock"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

func loadTestConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestWire_Memory(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"STORAGE_DRIVER": "memory", "PROGRESS_EVENT_WORKERS": "0"})

	rt, err := wire(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.cache)
	assert.IsType(t, &content.StaticGenerator{}, rt.content)
	assert.IsType(t, &keylock.KeyLock{}, rt.locker())
	require.NotNil(t, rt.celebrations)

	ctx := context.Background()
	res, err := rt.app.RegisterUser.Handle(ctx, command.RegisterUserCommand{
		Username: "nora", Email: "nora@example.com", Age: 7,
	})
	require.NoError(t, err)

	_, err = rt.app.RecordActivity.HandleChatTurn(ctx, command.RecordChatTurnCommand{UserID: res.UserID})
	require.NoError(t, err)

	published, failed := rt.bus.Stats()
	assert.Positive(t, published)
	assert.Zero(t, failed)
}

func TestWire_SQLite(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"STORAGE_DRIVER":          "sqlite",
		"SQLITE_PATH":             ":memory:",
		"FEATURE_UI_CELEBRATIONS": "false",
	})

	rt, err := wire(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.celebrations)
	status := rt.health.Check(context.Background())
	assert.True(t, status.Healthy)

	seeded, err := rt.app.SeedCatalog.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeded.Defined, seeded.Inserted)
}

func TestWire_UnknownDriver(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"STORAGE_DRIVER": "memory"})
	cfg.Storage.Driver = "cassandra"

	_, err := wire(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestEnabledFeatures(t *testing.T) {
	ff := config.NewFeatureFlags()
	for name := range ff.GetAllFeatures() {
		require.NoError(t, ff.DisableFeature(name))
	}
	require.NoError(t, ff.EnableFeature(config.FeatureStatsCache))
	require.NoError(t, ff.EnableFeature(config.FeatureCelebrations))

	assert.Equal(t, []string{config.FeatureStatsCache, config.FeatureCelebrations}, enabledFeatures(ff))
}
