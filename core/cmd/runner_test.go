package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/maximcoj/teleblog/core/config"
	coretelegram "github.com/maximcoj/teleblog/core/telegram"
)

type fakeApp struct{ opts coretelegram.RunOptions }

func (a fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, nil }

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("TELEBLOG_CONFIG", "/etc/teleblog.yaml")

	p, err := Options{ConfigPath: "flag.yaml", ConfigEnvVar: "TELEBLOG_CONFIG"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "flag.yaml", p)

	p, err = Options{ConfigEnvVar: "TELEBLOG_CONFIG", DefaultConfigPath: "config.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/teleblog.yaml", p)

	p, err = Options{ConfigEnvVar: "UNSET_TELEBLOG_CONFIG", DefaultConfigPath: "config.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", p)

	_, err = Options{ConfigEnvVar: "UNSET_TELEBLOG_CONFIG"}.ResolveConfigPath()
	assert.Error(t, err)
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var order []string
	app := fakeApp{opts: coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { order = append(order, "start"); return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { order = append(order, "stop"); return nil },
	}}
	loggerClosed := false

	err := Run(Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap: func(context.Context, *coreconfig.Config) (TelegramApp, error) {
			return app, nil
		},
		ShutdownLogger: func() error { loggerClosed = true; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "stop"}, order)
	assert.True(t, loggerClosed)
}

func TestRunBootstrapFailure(t *testing.T) {
	err := Run(Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap: func(context.Context, *coreconfig.Config) (TelegramApp, error) {
			return nil, errors.New("storage down")
		},
	})
	assert.ErrorContains(t, err, "storage down")
}
