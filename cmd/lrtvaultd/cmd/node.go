package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openalpha/lrt-vault/api"
	"github.com/openalpha/lrt-vault/app"
	"github.com/openalpha/lrt-vault/metrics"
)

const (
	flagChainID   = "chain-id"
	flagAuthority = "authority"
	flagOperator  = "operator"
	flagOracle    = "oracle"
	flagOverwrite = "overwrite"
	flagOutput    = "output"

	shutdownTimeout = 10 * time.Second
)

// InitCmd writes app.toml and genesis.json for a new node
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the node configuration and genesis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, _ := cmd.Flags().GetString(flagHome)
			overwrite, _ := cmd.Flags().GetBool(flagOverwrite)

			if _, err := os.Stat(app.GenesisPath(home)); err == nil && !overwrite {
				return fmt.Errorf("genesis already exists at %s; use --%s to replace it", app.GenesisPath(home), flagOverwrite)
			}

			cfg := app.DefaultConfig(home)
			cfg.ChainID, _ = cmd.Flags().GetString(flagChainID)
			cfg.Authority, _ = cmd.Flags().GetString(flagAuthority)
			cfg.Operator, _ = cmd.Flags().GetString(flagOperator)
			cfg.Oracle, _ = cmd.Flags().GetString(flagOracle)
			if err := cfg.Validate(); err != nil {
				return err
			}

			gen, err := app.DefaultGenesis(cfg, time.Now().UTC())
			if err != nil {
				return err
			}
			if err := gen.Validate(); err != nil {
				return err
			}
			if err := app.WriteConfig(cfg); err != nil {
				return err
			}
			if err := gen.Save(app.GenesisPath(home)); err != nil {
				return err
			}

			cmd.Printf("initialized %s in %s\n", cfg.ChainID, home)
			return nil
		},
	}
	cmd.Flags().String(flagChainID, app.DefaultConfig("").ChainID, "chain id")
	cmd.Flags().String(flagAuthority, "", "governance address: mints the base asset, updates params, drives simulated protocols")
	cmd.Flags().String(flagOperator, "", "vault operator address")
	cmd.Flags().String(flagOracle, "", "ratio oracle address (defaults to the authority)")
	cmd.Flags().Bool(flagOverwrite, false, "replace an existing genesis")
	_ = cmd.MarkFlagRequired(flagAuthority)
	_ = cmd.MarkFlagRequired(flagOperator)
	return cmd
}

// StartCmd runs the node and its API until interrupted
func StartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}

			node, err := app.NewApp(logger, db, cfg)
			if err != nil {
				_ = db.Close()
				return err
			}
			defer node.Close()

			if node.Height() == 0 {
				gen, err := app.LoadGenesis(app.GenesisPath(cfg.Home))
				if err != nil {
					return fmt.Errorf("store is empty and genesis could not be read: %w", err)
				}
				if err := node.InitChain(gen); err != nil {
					return err
				}
			}

			server := api.NewServer(node, metrics.GetCollector())
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			// Wait for interrupt signal
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				if err != nil {
					logger.Error("API server failed", "err", err)
					return err
				}
			case sig := <-quit:
				logger.Info("shutting down", "signal", sig.String())
			}

			// Graceful shutdown with timeout
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(ctx); err != nil {
				logger.Error("API server shutdown error", "err", err)
			}

			logger.Info("node stopped", "height", node.Height())
			return nil
		},
	}
	addNodeFlags(cmd)
	return cmd
}

// ExportCmd dumps the committed state as a genesis file
func ExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the committed state as genesis JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}

			node, err := app.NewApp(logger, db, cfg, app.WithMetrics(nil))
			if err != nil {
				_ = db.Close()
				return err
			}
			defer node.Close()

			if node.Height() == 0 {
				return fmt.Errorf("nothing to export: store at %s is empty", app.DataDir(cfg.Home))
			}
			gen, err := node.ExportGenesis()
			if err != nil {
				return err
			}

			if output, _ := cmd.Flags().GetString(flagOutput); output != "" {
				return gen.Save(output)
			}
			bz, err := json.MarshalIndent(gen, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(bz))
			return nil
		},
	}
	cmd.Flags().String(flagOutput, "", "write the genesis to this file instead of stdout")
	addNodeFlags(cmd)
	return cmd
}
