// Package connector 定义数据源连接器以及采集结果的统一落盘流程。
package connector

import (
	"context"
	"fmt"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/filestore"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/tpl"
)

// Connector 按子查询采集一个数据源
type Connector interface {
	Collect(ctx context.Context, queries []model.SubQuery, params config.Parameters, metadata map[string]string) ([]model.Record, error)
}

// Func 将普通函数适配为 Connector
type Func func(ctx context.Context, queries []model.SubQuery, params config.Parameters, metadata map[string]string) ([]model.Record, error)

// Collect implements Connector
func (f Func) Collect(ctx context.Context, queries []model.SubQuery, params config.Parameters, metadata map[string]string) ([]model.Record, error) {
	return f(ctx, queries, params, metadata)
}

// Registry 数据源名称到连接器的映射
type Registry map[string]Connector

// SourceError 单个数据源采集失败，任务会跳过该数据源继续执行
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Run 调用连接器采集，补全来源、元数据与可信标记，去重后按 saveTo 落盘。
// 采集失败时不写任何文件，下次运行会重新采集该数据源。
func Run(ctx context.Context, source string, c Connector, queries []model.SubQuery,
	params config.Parameters, metadata map[string]string, saveTo model.SaveTo) ([]model.Record, error) {
	records, err := c.Collect(ctx, queries, params, metadata)
	if err != nil {
		return nil, &SourceError{Source: source, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &SourceError{Source: source, Err: err}
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]model.Record, 0, len(records))
	approved := 0
	for _, rec := range records {
		key := rec.URL + "\x00" + rec.RawData
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		rec.Source = source
		rec.Metadata = model.CloneMetadata(metadata)
		rec.Approved = params.Approved(rec.URL)
		if rec.Approved {
			approved++
		}
		out = append(out, rec)
	}

	name, err := tpl.Format(params.TemplatesFilename[source], metadata)
	if err != nil {
		return nil, &SourceError{Source: source, Err: fmt.Errorf("filename: %w", err)}
	}
	dir := params.OutputDir(source)
	for _, ext := range saveTo.Extensions() {
		if err := filestore.Save(filestore.Path(dir, source, name, ext), out); err != nil {
			return nil, &SourceError{Source: source, Err: err}
		}
	}

	logger.Log.Infof("%s 采集完成: 共 %d 条，其中可信来源 %d 条", source, len(out), approved)
	return out, nil
}
