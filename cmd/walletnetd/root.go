package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NodeDir is the directory under $HOME holding config and data
const NodeDir = ".walletnet"

// DefaultNodeHome is used when neither --home nor WALLETNET_HOME is given
var DefaultNodeHome = filepath.Join(os.ExpandEnv("$HOME"), NodeDir)

// global flags
var (
	homeDir    string
	configFile string
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "walletnetd",
		Short:         "Wallet Network Daemon",
		Long:          "walletnetd keeps failover groups of blockchain node providers and reports their health.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Node home directory (default $HOME/"+NodeDir+")")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file, JSON or YAML (default <home>/config/walletnet_config.json)")

	InitRootCmd(rootCmd) // add subcommands like `start` and `version`

	return rootCmd
}
