package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
)

var configFiles []string

var rootCmd = &cobra.Command{
	Use:           "region_radar",
	Short:         "Regional news collection",
	Long:          `Collects regional news from search engines, Tavily and Telegram channels, then archives and mails the results.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", []string{"configs/config.yaml"},
		"Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.AddCommand(runCmd, planCmd, archiveCmd, mailCmd)
}

// loadConfig 加载配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFiles...)
	if err != nil {
		return nil, fmt.Errorf("无法加载配置文件: %w", err)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("无法初始化日志: %w", err)
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("region_radar: %v", err)
		stop()
		os.Exit(1)
	}
}
