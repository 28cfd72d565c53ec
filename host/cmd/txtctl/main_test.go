package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txtctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 192.168.7.2\nlog: {level: warn}\n"), 0o600))

	defer func(saved Options, level logrus.Level) {
		opts = saved
		logrus.SetLevel(level)
	}(opts, logrus.GetLevel())

	tests := []struct {
		name  string
		flags Options
		host  string
		level logrus.Level
		ext   bool
	}{
		{"file only", Options{Config: path}, "192.168.7.2", logrus.WarnLevel, false},
		{"host flag", Options{Config: path, Host: "direct"}, "direct", logrus.WarnLevel, false},
		{"level and extension", Options{Config: path, LogLevel: "debug", Extension: true}, "192.168.7.2", logrus.DebugLevel, true},
		{"no file", Options{}, "auto", logrus.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts = tt.flags
			cfg, err := loadConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.host, cfg.Host)
			assert.Equal(t, tt.ext, cfg.UseExtension)
			assert.Equal(t, tt.level, logrus.GetLevel())
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	defer func(saved Options) { opts = saved }(opts)

	opts = Options{Config: filepath.Join(t.TempDir(), "missing.yaml")}
	_, err := loadConfig()
	assert.Error(t, err)

	opts = Options{LogLevel: "chatty"}
	_, err = loadConfig()
	assert.Error(t, err)
}
