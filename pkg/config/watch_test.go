package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, "observability:\n  log_level: info\n")
	logger, hook := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var levels []string
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, logger, func(cfg *Config) {
			mu.Lock()
			defer mu.Unlock()
			levels = append(levels, cfg.Observability.LogLevel)
		})
	}()

	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "Watching config file for changes" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("observability:\n  log_level: verbose\n"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("observability:\n  log_level: debug\n"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) > 0 && levels[len(levels)-1] == "debug"
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.NotContains(t, levels, "verbose")
	mu.Unlock()

	cancel()
	assert.NoError(t, <-done)
}

func TestWatch_MissingDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	err := Watch(context.Background(), "/nonexistent/dir/beacon.yaml", logger, func(*Config) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch config directory")
}
