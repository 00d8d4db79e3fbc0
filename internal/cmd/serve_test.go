package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/3leaps/runprogress/internal/config"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(ctx context.Context) error {
	return s.err
}

func TestRundirHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		store      pinger
		wantErr    bool
		errContain string
	}{
		{"reachable", stubPinger{}, false, ""},
		{"unreachable", stubPinger{err: assert.AnError}, true, "run directory unreachable"},
		{"not opened", nil, true, "run directory not opened"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rundirHealthChecker{store: tt.store}.CheckHealth(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewRateLimiter(t *testing.T) {
	assert.Nil(t, newRateLimiter(config.RateLimitConfig{Enabled: false, RPS: 10, Burst: 5}))

	limiter := newRateLimiter(config.RateLimitConfig{Enabled: true, RPS: 10, Burst: 5})
	require.NotNil(t, limiter)
	assert.Equal(t, rate.Limit(10), limiter.Limit())
	assert.Equal(t, 5, limiter.Burst())
}

func TestNewStatusService(t *testing.T) {
	ctx := context.Background()
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load(ctx, map[string]any{"rundir": map[string]any{"base": writeRunDir(t)}})
	require.NoError(t, err)

	svc, store, err := newStatusService(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	resp, err := svc.GetStatus(ctx, "job-1", "ET")
	require.NoError(t, err)
	assert.Equal(t, 3, resp.FileCount)
	assert.NoError(t, rundirHealthChecker{store: store}.CheckHealth(ctx))

	cfg.RunDir.Base = "gs://elsewhere"
	_, _, err = newStatusService(ctx, cfg, nil)
	require.Error(t, err)

	cfg.RunDir.Base = t.TempDir()
	cfg.Estimator.Separator = ""
	_, _, err = newStatusService(ctx, cfg, nil)
	require.Error(t, err)
}
