package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: /var/lib/latticefs\njobSlots: 4\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/latticefs", cfg.DataDir)
	require.Equal(t, 4, cfg.JobSlots)
	require.Equal(t, Default().TaskFanOut, cfg.TaskFanOut)
}

func TestLoadLocationResourceValidatesKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`apiVersion: v1
kind: Secret
metadata:
  name: whoops
spec:
  path: /tmp
`), 0o644))

	_, err := LoadLocationResource(path)
	require.Error(t, err)
}

func TestLoadLocationResourceParsesRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`apiVersion: v1
kind: Location
metadata:
  name: photos
spec:
  path: /srv/photos
  rules:
    - kind: reject_files_by_glob
      globs: ["*.tmp"]
`), 0o644))

	res, err := LoadLocationResource(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/photos", res.Spec.Path)

	rules := res.Spec.IndexerRules()
	require.Len(t, rules, 1)
	require.Equal(t, []string{"*.tmp"}, rules[0].Globs)
}
