package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "rtseries v"+version+"\n", out.String())
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serve(ctx, engine.NewEngine(cfg)) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeReportsListenError(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ListenAddr = "not-an-address"

	err := serve(context.Background(), engine.NewEngine(cfg))
	assert.Error(t, err)
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	configPath = ""
	cfg, err := loadConfig(func(cfg *config.Config) {
		cfg.Client.ServerURL = "ws://example.com:9000"
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://example.com:9000", cfg.Client.ServerURL)

	_, err = loadConfig(func(cfg *config.Config) {
		cfg.Appender.TopicPrefix = ""
	})
	assert.Error(t, err)
}
