package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pushchain/push-wallet-network/walletClient/api"
	"github.com/pushchain/push-wallet-network/walletClient/config"
	"github.com/pushchain/push-wallet-network/walletClient/core"
	"github.com/pushchain/push-wallet-network/walletClient/logger"
	"github.com/pushchain/push-wallet-network/walletClient/nodeinfo"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
)

// Output formats
const (
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

// Set at build time with -ldflags "-X main.Version=... -X main.Commit=..."
var (
	Version = "dev"
	Commit  = ""
)

// NetworkOutput describes one configured network and how its providers resolved
type NetworkOutput struct {
	Name      string           `yaml:"name" json:"name"`
	Kind      string           `yaml:"kind" json:"kind"`
	Providers []ProviderOutput `yaml:"providers" json:"providers"`
	Skipped   []string         `yaml:"skipped,omitempty" json:"skipped,omitempty"`
}

// ProviderOutput is a resolved provider. URLs are not printed since some carry API keys.
type ProviderOutput struct {
	Provider string `yaml:"provider" json:"provider"`
	Host     string `yaml:"host" json:"host"`
}

// ProbeOutput is the result of probing one network
type ProbeOutput struct {
	Network     string `yaml:"network" json:"network"`
	OK          bool   `yaml:"ok" json:"ok"`
	CurrentHost string `yaml:"current_host" json:"current_host"`
	Error       string `yaml:"error,omitempty" json:"error,omitempty"`
}

// StatsOutput is the answer of a running daemon
type StatsOutput struct {
	Networks    []rpcpool.GroupStats `yaml:"networks" json:"networks"`
	LastFetched time.Time            `yaml:"last_fetched" json:"last_fetched"`
}

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(probeCmd())
	rootCmd.AddCommand(networksCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config to <home>/config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			home := resolveHome()
			if err := config.Save(cfg, home); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s/config\n", home)
			return nil
		},
	}
}

func startCmd() *cobra.Command {
	var probeOnStart bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the provider groups, health monitors and query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := core.NewWalletClient(ctx, cfg, log)
			if err != nil {
				return err
			}
			if err := client.Start(ctx); err != nil {
				client.Stop()
				return err
			}

			if probeOnStart {
				for network, err := range client.ProbeAll(ctx) {
					log.Warn().Str("network", network).Err(err).Msg("startup probe failed")
				}
			}

			<-ctx.Done()
			log.Info().Msg("shutting down")
			return client.Stop()
		},
	}

	cmd.Flags().BoolVar(&probeOnStart, "probe", false, "Probe every network once after startup")
	return cmd
}

func probeCmd() *cobra.Command {
	var (
		outputFormat string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe [network...]",
		Short: "Run the health check of networks through their provider groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// a one-shot probe needs neither the query server nor snapshots
			cfg.QueryServerPort = -1
			cfg.StatsSnapshotIntervalSeconds = -1

			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := core.NewWalletClient(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer client.Stop()

			networks := args
			if len(networks) == 0 {
				networks = client.NetworkNames()
			}

			results := make([]ProbeOutput, 0, len(networks))
			failed := 0
			for _, network := range networks {
				result := ProbeOutput{Network: network, OK: true}
				if err := client.Probe(ctx, network); err != nil {
					result.OK = false
					result.Error = err.Error()
					failed++
				}
				if stats, ok := client.NetworkStats(network); ok {
					result.CurrentHost = stats.CurrentHost
				}
				results = append(results, result)
			}

			if err := printOutput(cmd.OutOrStdout(), results, outputFormat); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d networks failed the probe", failed, len(networks))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall probe timeout")
	return cmd
}

func networksCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List configured networks and how their providers resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			output := make([]NetworkOutput, 0, len(cfg.Networks))
			for _, name := range cfg.NetworkNames() {
				netCfg := cfg.Networks[name]
				resolver := nodeinfo.NewResolver(name, netCfg.Kind, cfg.Credentials)
				infos, errs := resolver.ResolveAll(netCfg.Providers)

				entry := NetworkOutput{Name: name, Kind: string(netCfg.Kind)}
				for _, info := range infos {
					entry.Providers = append(entry.Providers, ProviderOutput{Provider: info.Provider, Host: info.Host()})
				}
				for _, err := range errs {
					entry.Skipped = append(entry.Skipped, err.Error())
				}
				output = append(output, entry)
			}

			return printOutput(cmd.OutOrStdout(), output, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func statusCmd() *cobra.Command {
	var (
		outputFormat string
		serverURL    string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query provider group stats from a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				serverURL = fmt.Sprintf("http://localhost:%d", cfg.QueryServerPort)
			}

			var (
				queryResp struct {
					Data        []rpcpool.GroupStats `json:"data"`
					LastFetched time.Time            `json:"last_fetched"`
				}
				errResp api.ErrorResponse
			)
			resp, err := resty.New().
				SetBaseURL(serverURL).
				SetTimeout(10 * time.Second).
				R().
				SetContext(cmd.Context()).
				SetResult(&queryResp).
				SetError(&errResp).
				Get("/api/v1/networks")
			if err != nil {
				return fmt.Errorf("failed to query networks: %w", err)
			}
			if resp.IsError() {
				if errResp.Error != "" {
					return fmt.Errorf("server error: %s", errResp.Error)
				}
				return fmt.Errorf("server returned status %d", resp.StatusCode())
			}

			sort.Slice(queryResp.Data, func(i, j int) bool { return queryResp.Data[i].Network < queryResp.Data[j].Network })
			return printOutput(cmd.OutOrStdout(), StatsOutput{
				Networks:    queryResp.Data,
				LastFetched: queryResp.LastFetched,
			}, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	cmd.Flags().StringVar(&serverURL, "server", "", "Query server URL (default http://localhost:<query_server_port>)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print walletnetd version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Name:       %s\n", "walletnetd")
			fmt.Fprintf(cmd.OutOrStdout(), "Version:    %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:     %s\n", Commit)
		},
	}
}

func resolveHome() string {
	if homeDir != "" {
		return homeDir
	}
	if env := os.Getenv("WALLETNET_HOME"); env != "" {
		return env
	}
	return DefaultNodeHome
}

// loadConfig reads --config, else <home>/config/walletnet_config.json, else the embedded
// defaults; then applies the environment and validates.
func loadConfig() (*config.Config, error) {
	home := resolveHome()

	var cfg config.Config
	switch {
	case configFile != "":
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	default:
		loaded, err := config.Load(home)
		if err == nil {
			cfg = loaded
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		defaults, err := config.LoadDefaultConfig()
		if err != nil {
			return nil, err
		}
		cfg = *defaults
	}

	if err := config.ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if cfg.NodeHome == "" {
		cfg.NodeHome = home
	}
	if err := config.ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// printOutput prints the output in the specified format
func printOutput(w io.Writer, data interface{}, format string) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
