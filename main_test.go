package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "minftp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestPrepareFlagsOverrideFile(t *testing.T) {
	logDir := t.TempDir()
	path := writeConfigFile(t, "root: /srv/files\ntimeout: 3s\nlog_dir: "+logDir+"\nlisting_format: short\n")

	cfg := config.Default()
	cfg.IsServer = true
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	cfg.BindFlags(fs, true)
	require.NoError(t, fs.Parse([]string{"--timeout", "7s", "--data-port-min", "40000", "--data-port-max", "40010"}))

	require.NoError(t, prepare(fs, cfg, path, "server", nil))

	assert.Equal(t, "/srv/files", cfg.RootDir)
	assert.Equal(t, config.ListingShort, cfg.ListingFormat)
	assert.Equal(t, 7*time.Second, cfg.Timeout)
	assert.Equal(t, 40000, cfg.DataPortMin)
	assert.Equal(t, 40010, cfg.DataPortMax)
	assert.True(t, cfg.IsServer)

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPrepareWithoutFile(t *testing.T) {
	cfg := config.Default()
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	cfg.BindFlags(fs, false)
	require.NoError(t, fs.Parse([]string{"--connect", "10.0.0.5:2121", "--log-dir", t.TempDir()}))

	require.NoError(t, prepare(fs, cfg, "", "client", nil))
	assert.Equal(t, "10.0.0.5:2121", cfg.ServerAddress)
	assert.Equal(t, config.DefaultTimeout, cfg.Timeout)
}

func TestPrepareRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		args []string
	}{
		{name: "bad port range from flags", args: []string{"--data-port-min", "500", "--data-port-max", "100"}},
		{name: "bad listing format from file", file: "listing_format: wide\n"},
		{name: "unparseable file", file: "timeout: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.IsServer = true
			cfg.LogDir = t.TempDir()
			fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
			cfg.BindFlags(fs, true)
			require.NoError(t, fs.Parse(tt.args))

			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}
			assert.Error(t, prepare(fs, cfg, path, "server", nil))
		})
	}
}

func TestPrepareMissingFile(t *testing.T) {
	cfg := config.Default()
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	cfg.BindFlags(fs, false)

	err := prepare(fs, cfg, filepath.Join(t.TempDir(), "absent.yaml"), "client", nil)
	assert.Error(t, err)
}

func TestRootCommandHasModes(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"server", "client", "discover"}, names)

	server, _, err := root.Find([]string{"server"})
	require.NoError(t, err)
	for _, flag := range []string{"config", "listen", "root", "data-port-min", "data-port-max", "advertise", "timeout"} {
		assert.NotNil(t, server.Flags().Lookup(flag), flag)
	}
	assert.Nil(t, server.Flags().Lookup("connect"))
}

func TestServerCommandRejectsBadConfig(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"server", "--listing", "wide", "--log-dir", t.TempDir()})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing format")
}
