// Package postprocess 定义后处理步骤：按名称配置，依次作用于 RAW 阶段的记录。
package postprocess

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/webpage"
)

// 内置步骤名称
const (
	FilterByRegion = "filter_raw_data_by_region"
	ModifyURLs     = "modify_urls"
	CleanSensitive = "clean_sensitive_content"
	ApprovedOnly   = "approved_only"
	LLMRelevance   = "llm_relevance"
)

// Func 后处理函数，返回新的记录列表
type Func func(ctx context.Context, records []model.Record, params config.Parameters) ([]model.Record, error)

// Step 带名称的后处理步骤
type Step struct {
	Name  string
	Apply Func
}

// TransformError 单个步骤失败，调用方丢弃其输出并继续下一个步骤
type TransformError struct {
	Step string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Step, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Deps 需要外部依赖的步骤所用的组件
type Deps struct {
	Relevance *Relevance
}

// Resolve 将配置中的步骤名称解析为步骤列表，未知名称返回错误
func Resolve(names []string, deps Deps) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		var fn Func
		switch name {
		case FilterByRegion:
			fn = filterByRegion
		case ModifyURLs:
			fn = modifyURLs
		case CleanSensitive:
			fn = cleanSensitive
		case ApprovedOnly:
			fn = approvedOnly
		case LLMRelevance:
			if deps.Relevance == nil {
				return nil, fmt.Errorf("post-processing step %s requires llm configuration", name)
			}
			fn = deps.Relevance.Apply
		default:
			return nil, fmt.Errorf("unknown post-processing step: %s", name)
		}
		steps = append(steps, Step{Name: name, Apply: fn})
	}
	return steps, nil
}

// filterByRegion 保留 raw_data 中包含任一地区关键词的记录；没有关键词时原样返回
func filterByRegion(_ context.Context, records []model.Record, params config.Parameters) ([]model.Record, error) {
	var quoted []string
	for _, k := range params.RegionKeys {
		if k != "" {
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
	}
	if len(quoted) == 0 {
		return records, nil
	}
	re, err := regexp.Compile("(?i)" + strings.Join(quoted, "|"))
	if err != nil {
		return nil, err
	}

	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if re.MatchString(r.RawData) {
			out = append(out, r)
		}
	}
	return out, nil
}

var urlSplit = regexp.MustCompile(`[./]+`)

// modifyURLs 去掉协议与开头的 www.，按点和斜杠切分后用斜杠重新拼接
func modifyURLs(_ context.Context, records []model.Record, _ config.Parameters) ([]model.Record, error) {
	out := make([]model.Record, len(records))
	for i, r := range records {
		if r.URL != "" {
			r.URL = ObfuscateURL(r.URL)
		}
		out[i] = r
	}
	return out, nil
}

var schemePattern = regexp.MustCompile(`^\w+://`)

// ObfuscateURL 例如 https://www.rbc.ru/news/1 变为 rbc/ru/news/1
func ObfuscateURL(u string) string {
	u = schemePattern.ReplaceAllString(u, "")
	u = strings.TrimPrefix(u, "www.")
	var parts []string
	for _, p := range urlSplit.Split(u, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}

// cleanSensitive 对正文与标题做脱敏
func cleanSensitive(_ context.Context, records []model.Record, _ config.Parameters) ([]model.Record, error) {
	out := make([]model.Record, len(records))
	for i, r := range records {
		r.RawData = webpage.Redact(r.RawData)
		r.Title = webpage.Redact(r.Title)
		out[i] = r
	}
	return out, nil
}

// approvedOnly 只保留可信来源
func approvedOnly(_ context.Context, records []model.Record, _ config.Parameters) ([]model.Record, error) {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.Approved {
			out = append(out, r)
		}
	}
	return out, nil
}

// host 用于日志中展示记录来源
func host(u string) string {
	p, err := url.Parse(u)
	if err != nil || p.Host == "" {
		return u
	}
	return p.Host
}
