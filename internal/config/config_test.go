package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAppEnv, EnvPort, EnvModelPath, EnvLogLevel, EnvLogFile,
		EnvONNXRuntimeLib, EnvIntraOpThreads, EnvMaxUploadBytes, EnvShutdownTimeout,
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "ResNet50V2_Model.h5", cfg.ModelPath)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
	assert.Empty(t, cfg.ONNXRuntimeLib)
	assert.Equal(t, 0, cfg.IntraOpThreads)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvModelPath, "/models/fer.onnx")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvAppEnv, "production")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvIntraOpThreads, "4")
	t.Setenv(EnvMaxUploadBytes, "1024")
	t.Setenv(EnvShutdownTimeout, "3s")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "/models/fer.onnx", cfg.ModelPath)
	assert.Equal(t, "8081", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 4, cfg.IntraOpThreads)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvModelPath, "/env/model.onnx")

	cfg, err := Load([]string{"--port", "9000", "--model-path=/flag/model.onnx"})
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/flag/model.onnx", cfg.ModelPath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad intra-op threads", map[string]string{EnvIntraOpThreads: "many"}, nil},
		{"negative intra-op threads", nil, []string{"--intra-op-threads", "-1"}},
		{"bad upload size", map[string]string{EnvMaxUploadBytes: "10MB"}, nil},
		{"zero upload size", nil, []string{"--max-upload-bytes", "0"}},
		{"bad shutdown timeout", map[string]string{EnvShutdownTimeout: "soon"}, nil},
		{"bad log level", map[string]string{EnvLogLevel: "loud"}, nil},
		{"unknown flag", nil, []string{"--gpu"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}
