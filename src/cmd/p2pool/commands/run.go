package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p2poolv2/p2pool/src/config"
	"github.com/p2poolv2/p2pool/src/node"
	"github.com/p2poolv2/p2pool/src/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a p2pool node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runP2Pool,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runP2Pool(cmd *cobra.Command, args []string) error {
	conf := &_config.P2Pool
	logger := conf.Logger()

	handle, done, err := node.NewHandle(conf)
	if err != nil {
		logger.WithField("error", err).Error("Cannot start node")
		return err
	}
	defer handle.Close()

	var serviceServer *service.Service
	if !conf.NoService {
		serviceServer = service.NewService(
			conf.ServiceAddr,
			handle,
			handle.Metrics().Registry(),
			logger.WithField("prefix", "service"),
		)
		go serviceServer.Serve()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		if err := handle.Shutdown(ctx); err != nil {
			logger.WithField("error", err).Error("Shutdown")
		}
		cancel()

		select {
		case <-done:
		case <-time.After(ShutdownTimeout):
			logger.Warn("Timed out waiting for node to stop")
		}
	case <-done:
		logger.Info("Node stopped")
	}

	if serviceServer != nil {
		serviceServer.Close()
	}

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.P2Pool.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.P2Pool.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.P2Pool.LogFile, "Also write logs to this file")

	// Network
	cmd.Flags().StringP("listen", "l", _config.P2Pool.Network.ListenAddress, "Listen multiaddr for p2pool node")
	cmd.Flags().StringSlice("dial", _config.P2Pool.Network.DialPeers, "Multiaddrs, with /p2p/<peer-id>, of peers to dial at startup")
	cmd.Flags().Bool("mdns", _config.P2Pool.Network.EnableMdns, "Discover peers on the local network")
	cmd.Flags().Duration("dial-timeout", _config.P2Pool.Network.DialTimeout, "Timeout of outbound connections")

	// Service
	cmd.Flags().Bool("no-service", _config.P2Pool.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.P2Pool.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().String("store-path", _config.P2Pool.Store.Path, "Share store directory")
}

// nestedFlags maps flags to the nested configuration keys they set.
var nestedFlags = map[string]string{
	"listen":       "network.listen_address",
	"dial":         "network.dial_peers",
	"mdns":         "network.mdns",
	"dial-timeout": "network.dial_timeout",
	"store-path":   "store.path",
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --store-path, this will update the
	// default store dir to be inside the new datadir
	_config.P2Pool.SetDataDir(_config.P2Pool.DataDir)

	_config.P2Pool.SetLogger(newLogger(_config.P2Pool.LogLevel, _config.P2Pool.LogFile))

	logFields := logrus.Fields{
		"p2pool.DataDir":       _config.P2Pool.DataDir,
		"p2pool.LogLevel":      _config.P2Pool.LogLevel,
		"p2pool.LogFile":       _config.P2Pool.LogFile,
		"p2pool.ServiceAddr":   _config.P2Pool.ServiceAddr,
		"p2pool.NoService":     _config.P2Pool.NoService,
		"p2pool.ListenAddress": _config.P2Pool.Network.ListenAddress,
		"p2pool.DialPeers":     _config.P2Pool.Network.DialPeers,
		"p2pool.EnableMdns":    _config.P2Pool.Network.EnableMdns,
		"p2pool.ShareTopic":    _config.P2Pool.Network.ShareTopic,
		"p2pool.DialTimeout":   _config.P2Pool.Network.DialTimeout,
		"p2pool.StorePath":     _config.P2Pool.Store.Path,
	}

	_config.P2Pool.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	for flag, key := range nestedFlags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/p2pool.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigName) // name of config file (without extension)
	viper.AddConfigPath(_config.P2Pool.DataDir)   // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.P2Pool.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.P2Pool.Logger().Debugf("No config file found in: %s", _config.P2Pool.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
