package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conexa-labs/searchsync/internal/config"
)

func runInit(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"init"}, args...))
	return root.Execute()
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	require.NoError(t, runInit(t))

	path := filepath.Join(dir, "searchsync.yaml")
	require.FileExists(t, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.StrategyTransactions, cfg.Repository.Strategy)
	assert.Equal(t, ":8081", cfg.Server.Addr)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	require.NoError(t, runInit(t))
	require.Error(t, runInit(t))
	require.NoError(t, runInit(t, "--force"))
}
