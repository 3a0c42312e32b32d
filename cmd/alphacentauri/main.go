package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/alphacentauri/internal/config"
)

var (
	version = "0.4.0"

	configFlag  string
	dbFlag      string
	verboseFlag bool
	logJSONFlag bool
	hostFlag    string
	portFlag    int
	tokenFlag   string

	rootCmd = &cobra.Command{
		Use:   "alphacentauri",
		Short: "Terminal backend: PTY sessions and user configuration for the alphacentauri UI",
		Long: `Runs the terminal backend. The UI talks to it over HTTP under /api and
receives notifications and terminal output over the websocket at /ws.

The user configuration is read from ~/.alphacentauri.config.json unless
--config points somewhere else. Only the default location is created when
missing.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(os.Stderr, verboseFlag, logJSONFlag)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), opts)
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the resolved user configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.LoadOrInitialize(opts.ConfigPath, false)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(struct {
				Path    string              `json:"path"`
				Shell   config.Shell        `json:"shell"`
				Keymaps []config.KeyCommand `json:"keymaps"`
			}{opts.ConfigPath, cfg.Shell, cfg.KeymapList()}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of alphacentauri",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "alphacentauri version %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"User configuration file (.json, .yaml or .yml); disables default-file generation")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Session journal database path")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSONFlag, "log-json", false, "Log as JSON")

	rootCmd.Flags().StringVar(&hostFlag, "host", config.DefaultHost, "Address to listen on")
	rootCmd.Flags().IntVar(&portFlag, "port", config.DefaultPort, "Port to listen on")
	rootCmd.Flags().StringVar(&tokenFlag, "token", "", "API token (generated when empty)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(historyCmd)
}

// resolveOptions layers the command-line flags over the defaults.
func resolveOptions(cmd *cobra.Command) (*config.Options, error) {
	opts, err := config.DefaultOptions()
	if err != nil {
		return nil, err
	}
	opts.SetConfigPath(configFlag)
	if dbFlag != "" {
		opts.DBPath = dbFlag
	}
	if f := cmd.Flags().Lookup("host"); f != nil {
		opts.Host = hostFlag
	}
	if f := cmd.Flags().Lookup("port"); f != nil {
		opts.Port = portFlag
	}
	opts.Token = tokenFlag
	opts.Verbose = verboseFlag
	opts.JSONLogs = logJSONFlag
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func setupLogging(w io.Writer, verbose, asJSON bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, handlerOpts)
	if asJSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
