package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cosmossdk.io/log"
	confixcmd "cosmossdk.io/tools/confix/cmd"
	"github.com/cosmos/cosmos-sdk/client"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openalpha/lrt-vault/app"
	restakingcli "github.com/openalpha/lrt-vault/x/restaking/client/cli"
)

const (
	flagHome      = "home"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"

	// Version of the node binary
	Version = "v0.1.0"
)

// DefaultNodeHome is the default home directory of the node
var DefaultNodeHome = defaultHome()

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lrtvault"
	}
	return filepath.Join(home, ".lrtvault")
}

// NewRootCmd creates a new root command for lrtvaultd
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lrtvaultd",
		Short: "Liquid restaking vault node",
		Long: `lrtvaultd runs a single-node liquid restaking vault: deposits mint claim
tokens, withdrawals queue into epochs settled by undelegating from restaking
protocols, and every operation is committed to a versioned store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetOut(cmd.OutOrStdout())
			cmd.SetErr(cmd.ErrOrStderr())

			// config subcommands resolve app.toml through the client home
			home, _ := cmd.Flags().GetString(flagHome)
			clientCtx := client.Context{}.WithCmdContext(cmd.Context()).WithHomeDir(home)
			return client.SetCmdClientContextHandler(clientCtx, cmd)
		},
	}
	rootCmd.PersistentFlags().String(flagHome, DefaultNodeHome, "node home directory")

	initRootCmd(rootCmd)

	return rootCmd
}

func initRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		InitCmd(),
		StartCmd(),
		ExportCmd(),
		VersionCmd(),
		confixcmd.ConfigCommand(),
	)

	// Add query commands
	queryCmd := &cobra.Command{
		Use:                        "query",
		Aliases:                    []string{"q"},
		Short:                      "Querying subcommands",
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}
	queryCmd.AddCommand(
		restakingcli.GetQueryCmd(),
		CmdQueryEvents(),
		CmdQueryAdapters(),
		CmdQueryFeedRatio(),
	)
	rootCmd.AddCommand(queryCmd)

	// Add transaction commands
	txCmd := &cobra.Command{
		Use:                        "tx",
		Short:                      "Transactions subcommands",
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}
	txCmd.AddCommand(
		restakingcli.GetTxCmd(),
		GetOracleTxCmd(),
		GetAdminTxCmd(),
		CmdSend(),
	)
	rootCmd.AddCommand(txCmd)
}

// addNodeFlags registers the flags of commands that open the local store
func addNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String(flagLogLevel, "", "log level (trace, debug, info, warn, error); overrides app.toml")
	cmd.Flags().String(flagLogFormat, "", "log format (plain, json); overrides app.toml")
}

// loadConfig reads app.toml under --home, applying LRTVAULT_* variables and
// any node flags the command was given
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	home, _ := cmd.Flags().GetString(flagHome)

	v := viper.New()
	for key, flag := range map[string]string{"log_level": flagLogLevel, "log_format": flagLogFormat} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return app.Config{}, err
			}
		}
	}
	return app.LoadConfig(v, home)
}

// newLogger builds the node logger from the configured level and format
func newLogger(cfg app.Config, out io.Writer) (log.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	opts := []log.Option{log.LevelOption(level)}
	switch cfg.LogFormat {
	case "json":
		opts = append(opts, log.OutputJSONOption())
	case "plain", "":
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return log.NewLogger(out, opts...).With("app", app.Name), nil
}

func openDB(cfg app.Config) (dbm.DB, error) {
	dir := app.DataDir(cfg.Home)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return dbm.NewDB(app.Name, dbm.BackendType(cfg.DBBackend), dir)
}

// VersionCmd returns a command to print the version
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("lrtvaultd " + Version)
		},
	}
}
