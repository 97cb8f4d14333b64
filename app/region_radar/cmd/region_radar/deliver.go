package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/archive"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/mailer"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive the post-processing output into zip files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return archiveOutput(cfg)
	},
}

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Mail the archives one file per message",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return mailOutput(cmd.Context(), cfg)
	},
}

func archiveOutput(cfg *config.Config) error {
	_, err := archive.CreateArchives(cfg.Storage.OutputDirPostProcessing, cfg.Archive.Extensions, cfg.Archive.MaxSizeMB)
	return err
}

func mailOutput(ctx context.Context, cfg *config.Config) error {
	if cfg.Mail.Recipient == "" {
		logger.Log.Warn("未配置收件人，跳过邮件发送")
		return nil
	}
	m := mailer.NewFromConfig(cfg.Mail)
	_, err := m.SendArchives(ctx, mailer.OptionsFromConfig(cfg.Mail, cfg.Storage.OutputDirPostProcessing))
	return err
}
