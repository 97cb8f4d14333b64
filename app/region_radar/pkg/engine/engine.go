package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/connector"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/storage"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/task"
)

// Ledger 运行台账
type Ledger interface {
	CreateRun(name string) (string, error)
	SavePhase(rec storage.PhaseRecord) error
	FinishRun(runID string, sum storage.RunSummary) error
}

// Summary 一次运行的统计
type Summary struct {
	Tasks   int
	Skipped int
	Failed  int
}

// Engine 按顺序执行任务的批处理引擎
type Engine struct {
	cfg        *config.Config
	connectors connector.Registry
	fetcher    task.PageFetcher
	ledger     Ledger
}

// NewEngine 创建引擎实例；ledger 可以为 nil
func NewEngine(cfg *config.Config, connectors connector.Registry, fetcher task.PageFetcher, ledger Ledger) *Engine {
	return &Engine{
		cfg:        cfg,
		connectors: connectors,
		fetcher:    fetcher,
		ledger:     ledger,
	}
}

// RunOptions 运行选项
type RunOptions struct {
	ProgressCallback func(status string, progress int)
}

// Run 依次处理每个任务的三个阶段。单个任务的错误或 panic 不会中断批处理；
// 只有 ctx 被取消时提前返回
func (e *Engine) Run(ctx context.Context, tasks []*task.Container, opts RunOptions) (Summary, error) {
	var sum Summary
	total := len(tasks)
	logger.Log.Infof("开始处理 %d 个任务", total)

	runID := e.createRun()
	defer func() {
		if runID == "" {
			return
		}
		if err := e.ledger.FinishRun(runID, storage.RunSummary(sum)); err != nil {
			logger.Log.Errorf("更新运行记录失败: %v", err)
		}
	}()

	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			logger.Log.Warnf("运行被取消，已处理 %d / %d 个任务", i, total)
			return sum, err
		}

		stage := fmt.Sprintf("%d / %d", i+1, total)
		start := time.Now()
		results, err := e.process(ctx, t, stage)
		sum.Tasks++

		failed := err != nil
		if err != nil {
			logger.Log.Errorf("任务 %s 处理失败: %v", t.Hash(), err)
		}
		for _, r := range results {
			if r.Skipped {
				sum.Skipped++
			}
			if r.Err != nil {
				failed = true
			}
			e.savePhase(runID, t, r)
		}
		if failed {
			sum.Failed++
		}

		logger.Log.Infof("阶段 %s 耗时 %s", stage, formatElapsed(time.Since(start)))
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(fmt.Sprintf("processed task %s", stage), (i+1)*100/total)
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Log.Warnf("运行被取消，已处理 %d / %d 个任务", sum.Tasks, total)
		return sum, err
	}
	logger.Log.Infof("全部任务完成: 共 %d 个，跳过阶段 %d 个，失败 %d 个", sum.Tasks, sum.Skipped, sum.Failed)
	return sum, nil
}

// process 执行单个任务，panic 转换为错误
func (e *Engine) process(ctx context.Context, t *task.Container, stage string) (results []task.PhaseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	t.Statistics(stage)
	phases := []func() task.PhaseResult{
		func() task.PhaseResult { return t.FetchProcessed(ctx, e.connectors) },
		func() task.PhaseResult {
			return t.AssembleRaw(ctx, e.fetcher, task.FetchOptions{
				Workers: e.cfg.Fetch.Workers,
				Timeout: time.Duration(e.cfg.Fetch.PageTimeoutMS) * time.Millisecond,
			})
		},
		func() task.PhaseResult { return t.PostProcess(ctx) },
	}
	for _, run := range phases {
		results = append(results, run())
		// 取消后不再进入下一阶段
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Engine) createRun() string {
	if e.ledger == nil {
		return ""
	}
	id, err := e.ledger.CreateRun(e.cfg.Name)
	if err != nil {
		logger.Log.Errorf("无法创建运行记录: %v", err)
		return ""
	}
	return id
}

func (e *Engine) savePhase(runID string, t *task.Container, r task.PhaseResult) {
	if runID == "" {
		return
	}
	rec := storage.PhaseRecord{
		RunID:    runID,
		TaskHash: t.Hash(),
		TaskName: t.Name(),
		Metadata: t.Metadata(),
		Phase:    r.Phase,
		Skipped:  r.Skipped,
		Records:  r.Records,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	if err := e.ledger.SavePhase(rec); err != nil {
		logger.Log.Errorf("保存阶段记录失败: %v", err)
	}
}

// formatElapsed 格式化为 "N 分 M 秒"
func formatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%d 分 %d 秒", secs/60, secs%60)
}
