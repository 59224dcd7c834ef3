package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/database"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/repository"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/service"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils/videogen"

	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "执行一次视频生成调度后退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log := logger.New(cfg.Log)
		defer log.Close()

		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("连接数据库失败: %w", err)
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()

		video := videogen.New(cfg.VideoServiceURL(), cfg.VideoService.APIKey, cfg.VideoService.Timeout)
		defer video.Close()

		podcasts := repository.NewPodcastRepository(db)
		tasks := repository.NewExternalTaskRepository(db)
		dispatcher := service.NewVideoGenerationService(podcasts, tasks, repository.NewCategoryRepository(db), video, log,
			service.VideoGenerationOptions{
				CallbackURL:    cfg.CallbackURL(),
				CandidateLimit: cfg.Scheduler.CandidateLimit,
				StaleAfter:     cfg.Scheduler.StaleGeneratingAfter,
			})

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		result := dispatcher.TriggerVideoGeneration(ctx)

		out, _ := json.Marshal(result)
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
