package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/browser"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/connector/factory"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/engine"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/postprocess"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/storage"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/task"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/webpage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate tasks and run the collection pipeline",
	Long:  `Runs every task through fetch, raw assembly and post-processing, then archives and mails the post-processing output.`,
	RunE:  runPipeline,
}

var (
	skipArchive bool
	skipMail    bool
)

func init() {
	runCmd.Flags().BoolVar(&skipArchive, "skip-archive", false, "Do not archive the output")
	runCmd.Flags().BoolVar(&skipMail, "skip-mail", false, "Do not mail the archives")
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger.Log.Infof("启动地区雷达 %s...", cfg.Name)

	var renderer browser.Renderer
	if cfg.API.Browser.Enabled {
		b := browser.New(cfg.API.Browser)
		defer b.Close()
		renderer = b
	}

	registry, err := factory.NewRegistry(cfg, renderer)
	if err != nil {
		return fmt.Errorf("数据源初始化失败: %w", err)
	}

	steps, err := resolveSteps(ctx, cfg)
	if err != nil {
		return err
	}

	tasks, err := task.Generate(cfg, steps)
	if err != nil {
		return err
	}

	var ledger engine.Ledger
	if cfg.DB.Driver != "" {
		store, err := storage.NewStorage(cfg.DB)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v，将不记录运行台账", err)
		} else {
			defer store.Close()
			ledger = store
			logger.Log.Info("已成功连接到数据库")
		}
	} else {
		logger.Log.Info("未配置数据库信息，跳过运行台账")
	}

	var pageRenderer browser.Renderer
	if cfg.Fetch.BrowserFallback {
		pageRenderer = renderer
	}
	fetcher := webpage.NewFetcher(&http.Client{}, pageRenderer)

	e := engine.NewEngine(cfg, registry, fetcher, ledger)
	if _, err := e.Run(ctx, tasks, engine.RunOptions{}); err != nil {
		return err
	}

	if !skipArchive {
		if err := archiveOutput(cfg); err != nil {
			return err
		}
	}
	if !skipMail {
		if err := mailOutput(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// resolveSteps 解析后处理步骤；配置了 LLM 时启用相关性评分
func resolveSteps(ctx context.Context, cfg *config.Config) ([]postprocess.Step, error) {
	var deps postprocess.Deps
	if cfg.LLM.APIKey != "" && cfg.LLM.Model != "" {
		rel, err := postprocess.NewRelevance(ctx, cfg.LLM, cfg.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("LLM 初始化失败: %w", err)
		}
		deps.Relevance = rel
	}
	return postprocess.Resolve(cfg.Parser.PostProcessing, deps)
}
