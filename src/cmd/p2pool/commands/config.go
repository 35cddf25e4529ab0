package commands

import (
	"os"
	"time"

	"github.com/p2poolv2/p2pool/src/config"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// ShutdownTimeout bounds the wait for the node to acknowledge a shutdown
// after a signal.
const ShutdownTimeout = 10 * time.Second

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	P2Pool config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		P2Pool: *config.NewDefaultConfig(),
	}
}

// newLogger creates the process logger. When logFile is set, every entry is
// also appended to that file.
func newLogger(level string, logFile string) *logrus.Logger {
	logger := logrus.New()
	logger.Level = config.LogLevel(level)
	logger.Formatter = new(prefixed.TextFormatter)

	if logFile == "" {
		return logger
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logger.WithField("error", err).Warnf("Failed to open %s, using default stderr", logFile)
		return logger
	}
	f.Close()

	logger.Hooks.Add(lfshook.NewHook(
		lfshook.PathMap{
			logrus.DebugLevel: logFile,
			logrus.InfoLevel:  logFile,
			logrus.WarnLevel:  logFile,
			logrus.ErrorLevel: logFile,
			logrus.FatalLevel: logFile,
			logrus.PanicLevel: logFile,
		},
		&logrus.TextFormatter{},
	))

	return logger
}
