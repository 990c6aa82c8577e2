package cmd

import (
	"fmt"

	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/database"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations to create or update database schema.
This command will:
- Create all required tables if they don't exist
- Update table schemas if needed
- Create indexes for request, approval and audit queries`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime(cmd)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"driver": cfg.Database.Driver,
			"host":   cfg.Database.Host,
			"dbname": cfg.Database.DBName,
		}).Info("Connecting to database")
		db, err := database.Connect(cfg.Database, config.IsProduction(cfg))
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer database.Close(db)

		log.Info("Running database migrations")
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		log.Info("Database migrations completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// loadRuntime 加载配置并创建日志记录器
func loadRuntime(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
