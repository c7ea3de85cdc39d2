package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandWithRootFlags(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("env-file", "", "")
	cmd.Flags().String("store", "", "")
	cmd.Flags().Bool("debug", false, "")
	return cmd
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd := commandWithRootFlags(t)
	require.NoError(t, cmd.Flags().Set("store", "memory"))
	require.NoError(t, cmd.Flags().Set("debug", "true"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_RejectsUnknownStore(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd := commandWithRootFlags(t)
	require.NoError(t, cmd.Flags().Set("store", "postgres"))

	_, err := loadConfig(cmd)
	assert.ErrorContains(t, err, "unknown store")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"chat", "serve", "threads", "watch", "mcp", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
