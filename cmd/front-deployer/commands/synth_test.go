package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func run(t *testing.T, args ...string) error {
	logger := zerolog.Nop()
	app := &cli.App{
		Name:     "front-deployer",
		Commands: []*cli.Command{SynthCommand(&logger), ValidateCommand(&logger)},
	}
	return app.Run(append([]string{"front-deployer"}, args...))
}

func TestSynth(t *testing.T) {
	dir := t.TempDir()

	fronts := filepath.Join(dir, "fronts.yaml")
	require.NoError(t, os.WriteFile(fronts, []byte("fronts:\n  - name: Front\n  - name: Admin\n"), 0o644))

	out := filepath.Join(dir, "out")
	err := run(t, "synth", "--env", "dev", "--config", fronts, "--format", "json", "--out", out, "--account-id", "123456789012")
	require.NoError(t, err)

	for _, name := range []string{"dev-Front.template.json", "dev-Admin.template.json"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Contains(t, doc, "Resources")
	}

	t.Run("selected front", func(t *testing.T) {
		out := filepath.Join(dir, "admin")
		require.NoError(t, run(t, "synth", "--env", "dev", "--config", fronts, "--front", "Admin", "--out", out))

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "dev-Admin.template.yaml", entries[0].Name())
	})

	t.Run("unknown front", func(t *testing.T) {
		assert.Error(t, run(t, "synth", "--env", "dev", "--config", fronts, "--front", "Blog"))
	})

	t.Run("bad format", func(t *testing.T) {
		assert.Error(t, run(t, "synth", "--env", "dev", "--format", "xml"))
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, run(t, "validate", "--env", "dev"))
}
