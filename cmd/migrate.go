package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/creditchat-backend/internal/app"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer log.Sync()

			svc, err := app.OpenDB(log, cfg)
			if err != nil {
				return err
			}
			log.Info("Migrations applied", "driver", cfg.DB.Driver)
			return svc.Close()
		},
	}
}

func newSeedAgentsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-agents",
		Short: "Upsert agents from a YAML file by name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer log.Sync()

			svc, err := app.OpenDB(log, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			reposet := app.NewRepos(svc.DB(), log)
			_, err = app.SeedAgents(cmd.Context(), log, reposet.Agent, cfg.AgentsSeedFile)
			return err
		},
	}
	cmd.Flags().String("file", "", "agents YAML file (overrides AGENTS_SEED_FILE)")
	bindFlag(v, cmd, "AGENTS_SEED_FILE", "file")
	return cmd
}
