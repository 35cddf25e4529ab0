package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/p2poolv2/p2pool/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultConfigName is the base name (without extension) of the
	// configuration file looked up in the data directory.
	DefaultConfigName = "p2pool"

	// DefaultStoreDir is the default name of the folder containing the Badger
	// database.
	DefaultStoreDir = "store"
)

// Default configuration values.
const (
	DefaultLogLevel      = "info"
	DefaultListenAddress = "/ip4/0.0.0.0/tcp/6884"
	DefaultServiceAddr   = "127.0.0.1:8884"
	DefaultShareTopic    = "share"
	DefaultEnableMdns    = true
	DefaultDialTimeout   = 10 * time.Second
)

// CommandQueueSize is the capacity of the queue carrying commands from node
// handles to the node actor. Producers block when it is full.
const CommandQueueSize = 32

// NetworkConfig holds the peer-to-peer options.
type NetworkConfig struct {
	// ListenAddress is the multiaddr the node binds to, for example
	// /ip4/0.0.0.0/tcp/6884.
	ListenAddress string `mapstructure:"listen_address"`

	// DialPeers are multiaddrs, including the /p2p/<peer-id> component, of
	// peers dialed once at startup. Unparsable or unreachable entries are
	// logged and skipped.
	DialPeers []string `mapstructure:"dial_peers"`

	// EnableMdns turns on local network discovery.
	EnableMdns bool `mapstructure:"mdns"`

	// ShareTopic is the gossip topic carrying share announcements.
	ShareTopic string `mapstructure:"share_topic"`

	// DialTimeout bounds each outbound connection attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// StoreConfig holds the options forwarded to the share store.
type StoreConfig struct {
	// Path is the directory of the Badger database.
	Path string `mapstructure:"path"`
}

// Config contains all the configuration properties of a p2pool node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, additionally writes logs to the given file.
	LogFile string `mapstructure:"log-file"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	Network NetworkConfig `mapstructure:"network"`

	Store StoreConfig `mapstructure:"store"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    DefaultLogLevel,
		ServiceAddr: DefaultServiceAddr,
		Network: NetworkConfig{
			ListenAddress: DefaultListenAddress,
			DialPeers:     []string{},
			EnableMdns:    DefaultEnableMdns,
			ShareTopic:    DefaultShareTopic,
			DialTimeout:   DefaultDialTimeout,
		},
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
	}

	return config
}

// NewTestConfig returns a config object with default values, a special logger
// for debugging tests, a loopback listen address on a random port, and
// discovery disabled.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	config.Network.ListenAddress = "/ip4/127.0.0.1/tcp/0"
	config.Network.EnableMdns = false
	return config
}

// SetDataDir sets the top-level directory, and updates the store path if it
// is currently set to the default value. If the store path is not the default,
// the user has explicitely set it to something else, so avoid changing it.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.Store.Path == DefaultStorePath() {
		c.Store.Path = filepath.Join(dataDir, DefaultStoreDir)
	}
}

// SetLogger replaces the underlying logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// Logger returns a formatted logrus Entry, with prefix set to "p2pool".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "p2pool")
}

// DefaultStorePath returns the default path for the badger database files.
func DefaultStorePath() string {
	return filepath.Join(DefaultDataDir(), DefaultStoreDir)
}

// DefaultDataDir return the default directory name for top-level p2pool config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".P2Pool")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "P2Pool")
		} else {
			return filepath.Join(home, ".p2pool")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
