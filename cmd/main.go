package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/creditchat-backend/internal/app"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "creditchat",
		Short:         "Credit-metered chat backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// A missing .env is fine; real deployments set the environment.
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")

	rootCmd.AddCommand(
		newServeCmd(v),
		newMigrateCmd(v),
		newSeedAgentsCmd(v),
	)
	return rootCmd
}

// loadConfig reads configuration and builds the process logger.
func loadConfig(v *viper.Viper) (app.Config, *logger.Logger, error) {
	cfg := app.LoadConfig(v)
	log, err := app.NewLogger(cfg)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}
