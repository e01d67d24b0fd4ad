package configstack

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	defs "mountkit/definitions"
	"mountkit/pkg/rootfs"
)

func writeConf(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, defs.DefaultMaxSymlinks, cfg.MaxSymlinks)
	assert.Equal(t, "rwm", cfg.DefaultAccess.String())
	assert.Equal(t, defs.ServiceName, cfg.Tracing.ServiceName)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	base := writeConf(t, dir, "10-base.conf", `
[log]
level = warn
format = json

[resolver]
max_symlinks = 8

[device]
default_access = rw
`)
	override := writeConf(t, dir, "20-override.ini", `
[log]
level = debug

[tracing]
endpoint = localhost:4317
insecure = true
sample_ratio = 0.25
export_timeout = 2s
`)

	cfg, err := Load(base, override, filepath.Join(dir, "missing.conf"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.MaxSymlinks)
	assert.Equal(t, "rw", cfg.DefaultAccess.String())
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.Insecure)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	assert.Equal(t, 2*time.Second, cfg.Tracing.ExportTimeout)
	assert.Equal(t, []string{base, override}, cfg.Files)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "typo.conf"))
	assert.Error(t, err)

	cfg, err := LoadFile(writeConf(t, dir, "mountkit.conf", "[log]\nlevel = warn\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(writeConf(t, dir, "access.conf", "[device]\ndefault_access = rwx\n"))
	assert.Error(t, err)

	_, err = Load(writeConf(t, dir, "ratio.conf", "[tracing]\nsample_ratio = 2\n"))
	assert.Error(t, err)

	_, err = Load(writeConf(t, dir, "timeout.conf", "[tracing]\nexport_timeout = soon\n"))
	assert.Error(t, err)

	cfg, err := Load(writeConf(t, dir, "symlinks.conf", "[resolver]\nmax_symlinks = -1\n"))
	require.NoError(t, err)
	assert.Equal(t, defs.DefaultMaxSymlinks, cfg.MaxSymlinks)
}

func TestApply(t *testing.T) {
	t.Cleanup(func() { rootfs.SetMaxSymlinks(0) })

	cfg := NewConfig()
	cfg.MaxSymlinks = 5
	require.NoError(t, cfg.Apply())
	assert.Equal(t, 5, rootfs.MaxSymlinks())

	cfg.Log.Level = "loud"
	assert.Error(t, cfg.Apply())
}

func TestDiscoverConfigFiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("file from env", func(t *testing.T) {
		path := writeConf(t, dir, "env.conf", "")
		t.Setenv(defs.ConfEnv, path)
		files, err := DiscoverConfigFiles()
		require.NoError(t, err)
		assert.Equal(t, []string{path}, files)
	})

	t.Run("file from env with bad extension", func(t *testing.T) {
		t.Setenv(defs.ConfEnv, writeConf(t, dir, "env.yaml", ""))
		_, err := DiscoverConfigFiles()
		assert.Error(t, err)
	})

	t.Run("dropin dir from env", func(t *testing.T) {
		dropin := filepath.Join(dir, "conf.d")
		require.NoError(t, os.Mkdir(dropin, 0o755))
		b := writeConf(t, dropin, "b.ini", "")
		a := writeConf(t, dropin, "a.conf", "")
		writeConf(t, dropin, "notes.txt", "")
		require.NoError(t, os.Mkdir(filepath.Join(dropin, "sub.conf"), 0o755))

		t.Setenv(defs.ConfEnv, "")
		t.Setenv(defs.ConfDirEnv, dropin)
		files, err := DiscoverConfigFiles()
		require.NoError(t, err)
		assert.Equal(t, []string{a, b}, files)
	})
}
