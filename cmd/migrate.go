package cmd

import (
	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/database"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "迁移数据库表结构并初始化管理员账户",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log := logger.New(cfg.Log)
		defer log.Close()

		if err := database.Init(cfg, log); err != nil {
			return err
		}
		defer database.Close()

		log.Infof("数据库迁移完成")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
