package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/connector"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/filestore"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/postprocess"
)

// 阶段名称
const (
	PhaseFetch       = "fetch"
	PhaseAssemble    = "assemble"
	PhasePostProcess = "postprocess"
)

// PhaseResult 单个阶段的执行结果
type PhaseResult struct {
	Phase   string
	Skipped bool
	Records int
	Err     error
}

// PageFetcher 获取网页正文，失败时由调用方置为空字符串
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchOptions 阶段二的网页抓取参数
type FetchOptions struct {
	Workers int
	Timeout time.Duration
}

// FetchProcessed 阶段一：依次调用各数据源连接器，已有输出文件的数据源跳过
func (c *Container) FetchProcessed(ctx context.Context, connectors connector.Registry) PhaseResult {
	logger.Log.Info("**** 采集数据源 ****")
	defer c.advance(ProcessedFetched)

	res := PhaseResult{Phase: PhaseFetch}
	var errs []error
	skipped := 0
	for _, source := range c.sources {
		if c.sourceDone(source) {
			logger.Log.Infof(">> 跳过 %s %v，输出文件已存在", source, c.metadata)
			skipped++
			continue
		}
		conn, ok := connectors[source]
		if !ok {
			logger.Log.Warnf("未知数据源 %s，跳过", source)
			skipped++
			continue
		}
		records, err := connector.Run(ctx, source, conn, c.toParse[source], c.params, c.metadata, c.saveTo)
		if err != nil {
			logger.Log.Errorf("数据源采集失败: %v", err)
			errs = append(errs, err)
			continue
		}
		res.Records += len(records)
	}
	res.Skipped = len(c.sources) > 0 && skipped == len(c.sources)
	res.Err = errors.Join(errs...)
	return res
}

// sourceDone 任一启用格式的输出文件存在即视为已采集
func (c *Container) sourceDone(source string) bool {
	for _, ext := range c.saveTo.Extensions() {
		path, err := c.SourceFile(source, ext)
		if err != nil {
			return false
		}
		if filestore.Exists(path) {
			return true
		}
	}
	return false
}

// AssembleRaw 阶段二：合并各数据源输出，去重、修正元数据、补全正文后写入 RAW 文件
func (c *Container) AssembleRaw(ctx context.Context, fetcher PageFetcher, opts FetchOptions) PhaseResult {
	logger.Log.Info("**** 组装 RAW 数据 ****")
	defer c.advance(RawAssembled)

	res := PhaseResult{Phase: PhaseAssemble}
	rawPath, err := c.StageFile(model.StageRaw)
	if err != nil {
		res.Err = err
		return res
	}
	if filestore.Exists(rawPath) {
		logger.Log.Infof(">> 跳过 %s，文件已存在", rawPath)
		res.Skipped = true
		return res
	}

	logger.Log.Infof("使用数据源: %v", c.sources)
	var records []model.Record
	for _, source := range c.sources {
		loaded, err := c.loadSource(source)
		if err != nil {
			logger.Log.Warnf("读取 %s 数据失败: %v", source, err)
			continue
		}
		records = append(records, loaded...)
	}

	records = GetDistinctData(records)
	records = c.FixMetadata(records)
	records = FillRawData(ctx, records, fetcher, opts)
	// 被中断的抓取结果不完整，不写文件，下次运行重新组装
	if err := ctx.Err(); err != nil {
		logger.Log.Warnf("组装被中断，未写入 %s: %v", rawPath, err)
		res.Err = err
		return res
	}

	if err := filestore.WriteJSON(rawPath, records); err != nil {
		res.Err = err
		return res
	}
	logger.Log.Infof(">> RAW 数据已保存: %s (%d 条)", rawPath, len(records))
	res.Records = len(records)
	return res
}

// loadSource 优先读取 JSON，未启用 JSON 时读取 Excel
func (c *Container) loadSource(source string) ([]model.Record, error) {
	var ext string
	switch {
	case c.saveTo.JSON:
		ext = "json"
	case c.saveTo.Excel:
		ext = "xlsx"
	default:
		return nil, nil
	}
	path, err := c.SourceFile(source, ext)
	if err != nil {
		return nil, err
	}
	if !filestore.Exists(path) {
		logger.Log.Warnf("未找到 %s 的输出文件 %s", source, path)
		return nil, nil
	}
	return filestore.Load(path)
}

// GetDistinctData 按 (url, raw_data) 去重，保留首次出现的记录
func GetDistinctData(records []model.Record) []model.Record {
	type key struct{ url, raw string }
	seen := make(map[key]struct{}, len(records))
	out := make([]model.Record, 0, len(records))
	for _, rec := range records {
		k := key{rec.URL, rec.RawData}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// FixMetadata 用容器元数据覆盖记录元数据；频道类数据源只采集一次，需要按当前地区修正
func (c *Container) FixMetadata(records []model.Record) []model.Record {
	for i := range records {
		merged := model.CloneMetadata(records[i].Metadata)
		if merged == nil {
			merged = make(map[string]string, len(c.metadata))
		}
		for k, v := range c.metadata {
			merged[k] = v
		}
		records[i].Metadata = merged
	}
	return records
}

// FillRawData 并发抓取 raw_data 为空的记录，结果中已有正文的记录在前
func FillRawData(ctx context.Context, records []model.Record, fetcher PageFetcher, opts FetchOptions) []model.Record {
	var filled, pending []model.Record
	for _, rec := range records {
		if rec.RawData != "" {
			filled = append(filled, rec)
		} else {
			pending = append(pending, rec)
		}
	}
	logger.Log.Infof("记录总数: %d，待抓取正文: %d", len(records), len(pending))
	if len(pending) == 0 || fetcher == nil {
		return append(filled, pending...)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range pending {
		g.Go(func() error {
			pending[i].RawData = fetchPage(ctx, fetcher, pending[i].URL, opts.Timeout)
			return nil
		})
	}
	_ = g.Wait()

	return append(filled, pending...)
}

// fetchPage 任何错误或超时都返回空字符串
func fetchPage(ctx context.Context, fetcher PageFetcher, url string, timeout time.Duration) (text string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("抓取 %s 时发生 panic: %v", url, r)
			text = ""
		}
	}()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := fetcher.Fetch(ctx, url)
	if err != nil {
		logger.Log.Debugf("抓取 %s 失败: %v", url, err)
		return ""
	}
	return text
}

// PostProcess 阶段三：依次应用后处理步骤，失败的步骤被跳过
func (c *Container) PostProcess(ctx context.Context) PhaseResult {
	logger.Log.Info("**** 后处理 RAW 数据 ****")
	defer c.advance(PostProcessed)

	res := PhaseResult{Phase: PhasePostProcess}
	outPath, err := c.StageFile(model.StagePostProcessing)
	if err != nil {
		res.Err = err
		return res
	}
	if filestore.Exists(outPath) {
		logger.Log.Infof(">> 跳过 %s，文件已存在", outPath)
		res.Skipped = true
		return res
	}

	rawPath, err := c.StageFile(model.StageRaw)
	if err != nil {
		res.Err = err
		return res
	}
	records, err := filestore.ReadJSON(rawPath)
	if err != nil {
		logger.Log.Errorf("读取 RAW 文件 %s 失败: %v", rawPath, err)
		res.Err = err
		return res
	}

	var errs []error
	for _, step := range c.steps {
		out, err := applyStep(ctx, step, cloneRecords(records), c)
		if err != nil {
			logger.Log.Errorf("后处理失败，已跳过: %v", err)
			errs = append(errs, err)
			continue
		}
		logger.Log.Infof("后处理 %s: %d -> %d 条", step.Name, len(records), len(out))
		records = out
	}
	if err := ctx.Err(); err != nil {
		logger.Log.Warnf("后处理被中断，未写入 %s: %v", outPath, err)
		res.Err = errors.Join(append(errs, err)...)
		return res
	}

	if err := filestore.WriteJSON(outPath, records); err != nil {
		res.Err = errors.Join(append(errs, err)...)
		return res
	}
	logger.Log.Infof(">> 后处理数据已保存: %s (%d 条)", outPath, len(records))
	res.Records = len(records)
	res.Err = errors.Join(errs...)
	return res
}

// applyStep 将错误与 panic 统一包装为 TransformError
func applyStep(ctx context.Context, step postprocess.Step, records []model.Record, c *Container) (out []model.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &postprocess.TransformError{Step: step.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = step.Apply(ctx, records, c.params)
	if err != nil {
		return nil, &postprocess.TransformError{Step: step.Name, Err: err}
	}
	return out, nil
}

func cloneRecords(records []model.Record) []model.Record {
	out := make([]model.Record, len(records))
	for i, rec := range records {
		rec.Metadata = model.CloneMetadata(rec.Metadata)
		out[i] = rec
	}
	return out
}

func (c *Container) advance(s State) {
	if s > c.state {
		c.state = s
	}
}
