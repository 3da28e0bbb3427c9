// Command alkanesd is the node composition root: it wires internal/config,
// internal/indexer, internal/view, and internal/rpcserver into a single
// cobra CLI exposing serve and genesis subcommands.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alkanes-io/alkanes/internal/config"
	"github.com/alkanes-io/alkanes/internal/handler"
	"github.com/alkanes-io/alkanes/internal/indexer"
	"github.com/alkanes-io/alkanes/internal/kvstore"
	"github.com/alkanes-io/alkanes/internal/rpcserver"
	"github.com/alkanes-io/alkanes/internal/view"
)

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{Use: "alkanesd"}
	root.PersistentFlags().String("env", "", "environment overlay to merge over cmd/config/default.yaml")
	root.AddCommand(serveCmd())
	root.AddCommand(genesisCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	env, _ := cmd.Flags().GetString("env")
	if env == "" {
		env = os.Getenv("ALKANES_ENV")
	}
	cfg, err := config.Load(env)
	if err != nil {
		return nil, err
	}
	lv, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	logrus.SetLevel(lv)
	return cfg, nil
}

// serveCmd builds the indexer driver over an in-memory store (the
// reference KVStore backend; see internal/kvstore's package doc) and
// serves the view layer over HTTP until interrupted. No block source is
// wired in, so the driver indexes no blocks in this process.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the indexer and its view RPC surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			store := kvstore.NewInMemoryStore()
			table := handler.DefaultGenesisTable(cfg.ChainNetwork(), cfg.Network.GenesisHeight)
			driver := indexer.NewDriver(store, cfg.Execution.FuelPerMessage, table, cfg.Network.ReorgDepth)

			zapLogger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("alkanesd: init zap logger: %w", err)
			}
			zap.ReplaceGlobals(zapLogger)
			defer zapLogger.Sync()

			v := view.New(driver)
			srv := rpcserver.New(v, zapLogger.Sugar(), cfg.RateLimitPerSec())

			bind := cfg.RPC.BindAddr
			if bind == "" {
				bind = ":8787"
			}
			logrus.WithField("bind", bind).Info("alkanesd: serving view RPC")
			return http.ListenAndServe(bind, srv)
		},
	}
}

// genesisCmd runs the genesis bootstrap in isolation, useful for verifying
// a network's template table deploys cleanly before indexing begins.
func genesisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genesis",
		Short: "deploy the genesis template table against a fresh store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store := kvstore.NewInMemoryStore()
			table := handler.DefaultGenesisTable(cfg.ChainNetwork(), cfg.Network.GenesisHeight)
			driver := indexer.NewDriver(store, cfg.Execution.FuelPerMessage, table, cfg.Network.ReorgDepth)
			if err := handler.RunGenesis(table, driver.Bytecode); err != nil {
				return fmt.Errorf("alkanesd: genesis: %w", err)
			}
			logrus.WithField("height", cfg.Network.GenesisHeight).Info("alkanesd: genesis deployed")
			return nil
		},
	}
}
