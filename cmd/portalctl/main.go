package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"realtyportal/internal/config"
	"realtyportal/internal/database"
)

const programName = "portalctl"

var globalFlags = struct {
	debug bool
}{}

var log = logrus.WithField("component", programName)

// env is loaded once per invocation by the root command
type env struct {
	cfg *config.Config
	db  *gorm.DB
}

var current env

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Operator tasks for the realty portal database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if globalFlags.debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := database.Init(); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		current = env{cfg: cfg, db: database.GetDB()}
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return database.Close()
	}

	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(createAdminCommand())
	rootCmd.AddCommand(seedProspectusCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and indexes",
		// Init has already migrated by the time RunE executes.
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info("Schema is up to date")
			return nil
		},
	}
}
