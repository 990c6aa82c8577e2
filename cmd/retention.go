package cmd

import (
	"fmt"

	"github.com/mautops/shipchange-gin/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// retentionCmd 立即执行一次保留期清理
var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Purge audit and login logs past their retention period",
	Long: `Run a single retention sweep using the retention section of the config.
Audit logs older than retention.audit_days and login logs older than
retention.login_days are deleted. A value of 0 keeps records forever.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime(cmd)
		if err != nil {
			return err
		}

		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		result, err := ctr.Retention().Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("retention sweep failed: %w", err)
		}
		log.WithFields(logrus.Fields{
			"audit_deleted": result.AuditDeleted,
			"login_deleted": result.LoginDeleted,
		}).Info("Retention sweep completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retentionCmd)
}
