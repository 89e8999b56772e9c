package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasvir/internal/bootstrap"
	"tasvir/internal/infra"
)

const envPrefix = "TASVIR"

// newRootCmd assembles the admin CLI. Settings resolve flag > TASVIR_*
// environment > the service environment read by infra.LoadConfig.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "tasvirctl",
		Short:        "Operate a tasvir deployment: migrations, plans, discounts, credentials",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if file := v.GetString("env-file"); file != "" {
				if err := godotenv.Load(file); err != nil {
					return fmt.Errorf("load %s: %w", file, err)
				}
			} else {
				_ = godotenv.Load()
			}
			return nil
		},
	}

	root.PersistentFlags().String("env-file", "", "dotenv file to load before reading configuration")
	root.PersistentFlags().String("database-url", "", "postgres DSN (default: DATABASE_URL)")
	root.PersistentFlags().Duration("timeout", 30*time.Second, "deadline for the whole command")
	for _, name := range []string{"env-file", "database-url", "timeout"} {
		bindFlag(v, root, name)
	}

	root.AddCommand(
		newMigrateCmd(v),
		newPlanCmd(v),
		newDiscountCmd(v),
		newPurchaseCmd(v),
		newReplayCmd(v),
		newCreditsCmd(v),
		newSweepCmd(v),
		newCredentialsCmd(v),
	)
	return root
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %q: %v", name, err))
	}
}

// loadConfig reads the service configuration and applies CLI overrides. The
// CLI always talks to postgres.
func loadConfig(v *viper.Viper) (*infra.Config, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	if dsn := strings.TrimSpace(v.GetString("database-url")); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required (--database-url or DATABASE_URL)")
	}
	cfg.StoreDriver = infra.StoreDriverPostgres
	return cfg, nil
}

// withDeps builds the service graph for one command and tears it down after.
func withDeps(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, deps *bootstrap.Deps) error) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	logger := infra.NewLogger(infra.LogOptions{
		Env:     "cli",
		Level:   cfg.LogLevel,
		Service: "tasvirctl",
		Out:     cmd.ErrOrStderr(),
	}).With().Str("cmd", cmd.CommandPath()).Logger()

	ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
	defer cancel()

	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(ctx, deps)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
