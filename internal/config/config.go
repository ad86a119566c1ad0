package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Environment variable names.
const (
	EnvAppEnv          = "APP_ENV"
	EnvPort            = "PORT"
	EnvModelPath       = "MODEL_PATH"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFile         = "LOG_FILE"
	EnvONNXRuntimeLib  = "ONNXRUNTIME_LIB"
	EnvIntraOpThreads  = "ONNX_INTRA_OP_THREADS"
	EnvMaxUploadBytes  = "MAX_UPLOAD_BYTES"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

// Defaults.
const (
	DefaultModelPath       = "ResNet50V2_Model.h5"
	DefaultPort            = "5000"
	DefaultAppEnv          = "development"
	DefaultLogLevel        = "info"
	DefaultMaxUploadBytes  = 10 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds runtime settings for the server.
type Config struct {
	Env             string
	Port            string
	ModelPath       string
	LogLevel        slog.Level
	LogFile         string
	ONNXRuntimeLib  string
	IntraOpThreads  int
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// Load reads .env (if present), then the environment, then args. Later
// sources win.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	intraOp, err := getEnvInt(EnvIntraOpThreads, 0)
	if err != nil {
		return nil, err
	}
	maxUpload, err := getEnvInt(EnvMaxUploadBytes, DefaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}
	shutdown, err := getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return nil, err
	}

	flags := pflag.NewFlagSet("fer-service", pflag.ContinueOnError)
	var (
		env            = flags.String("env", getEnv(EnvAppEnv, DefaultAppEnv), "runtime environment (development or production)")
		port           = flags.String("port", getEnv(EnvPort, DefaultPort), "HTTP port to listen on")
		modelPath      = flags.String("model-path", getEnv(EnvModelPath, DefaultModelPath), "path to the ONNX model file")
		logLevel       = flags.String("log-level", getEnv(EnvLogLevel, DefaultLogLevel), "log level (debug, info, warn, error)")
		logFile        = flags.String("log-file", getEnv(EnvLogFile, ""), "also write logs to this rotated file")
		ortLib         = flags.String("onnxruntime-lib", getEnv(EnvONNXRuntimeLib, ""), "path to the onnxruntime shared library")
		intraOpThreads = flags.Int("intra-op-threads", intraOp, "ONNX Runtime intra-op threads (0 = runtime default)")
		maxUploadBytes = flags.Int64("max-upload-bytes", int64(maxUpload), "maximum request body size in bytes")
		shutdownTime   = flags.Duration("shutdown-timeout", shutdown, "graceful shutdown timeout")
	)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", *logLevel, err)
	}
	if *maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be positive, got %d", *maxUploadBytes)
	}
	if *intraOpThreads < 0 {
		return nil, fmt.Errorf("intra-op threads must not be negative, got %d", *intraOpThreads)
	}

	return &Config{
		Env:             *env,
		Port:            *port,
		ModelPath:       *modelPath,
		LogLevel:        level,
		LogFile:         *logFile,
		ONNXRuntimeLib:  *ortLib,
		IntraOpThreads:  *intraOpThreads,
		MaxUploadBytes:  *maxUploadBytes,
		ShutdownTimeout: *shutdownTime,
	}, nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
