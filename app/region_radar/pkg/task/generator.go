package task

import (
	"fmt"
	"strings"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/postprocess"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/query"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/tpl"
)

// ConfigurationError 配置无法生成任务，整个生成过程中止
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(err error, format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// baseTemplateKey 文件名基础模板在占位符扫描中使用的键
const baseTemplateKey = "\x00base"

// Generate 对文件名模板中出现的维度做笛卡尔积，为每个组合生成一个任务。
// 任何错误都会中止生成，不返回部分结果
func Generate(cfg *config.Config, steps []postprocess.Step) ([]*Container, error) {
	templates := make(map[string]string, len(cfg.Parser.TemplatesFilename)+1)
	for k, v := range cfg.Parser.TemplatesFilename {
		templates[k] = v
	}
	templates[baseTemplateKey] = cfg.Parser.TemplatesFilenameBase

	required, err := tpl.Placeholders(templates)
	if err != nil {
		return nil, configErr(err, "invalid filename template")
	}

	dims := cfg.Dimensions()
	values := make([][]string, len(required))
	for i, name := range required {
		vals := nonEmpty(dims[name])
		if len(vals) == 0 {
			return nil, configErr(nil, "placeholder %s must have a value", name)
		}
		values[i] = vals
	}

	saveTo := model.SaveTo{JSON: true}
	if cfg.Parser.SaveTo != nil {
		saveTo = *cfg.Parser.SaveTo
	}

	var out []*Container
	for _, combo := range product(values) {
		metadata := make(map[string]string, len(required))
		for i, name := range required {
			metadata[name] = combo[i]
		}
		c, err := build(cfg, metadata, saveTo, steps)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	logger.Log.Infof("共生成 %d 个任务", len(out))
	return out, nil
}

// build 为一个维度组合构造容器
func build(cfg *config.Config, metadata map[string]string, saveTo model.SaveTo, steps []postprocess.Step) (*Container, error) {
	category := metadata[config.DimCategories]
	phrases, ok := cfg.Parser.CategoriesSearch[category]
	if !ok {
		return nil, configErr(nil, "category %q has no search phrases", category)
	}

	toParse := make(map[string][]model.SubQuery)
	for _, source := range cfg.Parser.Sources {
		tmpl, ok := cfg.Parser.TemplatesParse[source]
		if !ok {
			continue
		}
		if source == model.SourceTelegram {
			channels := cfg.Parser.CategoriesTelegram[category]
			if len(channels) == 0 {
				continue
			}
			queries, err := query.Channels(tmpl, channels, cfg.SearchLimit(source))
			if err != nil {
				return nil, configErr(err, "telegram queries for %q", category)
			}
			toParse[source] = queries
			continue
		}

		rule, ok := query.RuleFor(source)
		if !ok {
			return nil, configErr(nil, "source %s has no query length rule", source)
		}
		queries, err := query.Partition(tmpl, metadata, phrases, rule, cfg.SearchLimit(source))
		if err != nil {
			return nil, configErr(err, "%s queries for %q", source, category)
		}
		toParse[source] = queries
	}

	var regionKeys []string
	if region, ok := metadata[config.DimRegions]; ok {
		keys, ok := cfg.Region.Keywords[region]
		if !ok {
			return nil, configErr(nil, "region %q has no keywords", region)
		}
		regionKeys = keys
	}

	params := cfg.Snapshot(phrases, regionKeys)
	return New(cfg.Name, cfg.Parser.Sources, toParse, metadata, params, saveTo, steps), nil
}

// product 笛卡尔积，最后一个维度变化最快
func product(values [][]string) [][]string {
	out := [][]string{{}}
	for _, vals := range values {
		next := make([][]string, 0, len(out)*len(vals))
		for _, prefix := range out {
			for _, v := range vals {
				combo := make([]string, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, v))
			}
		}
		out = next
	}
	return out
}

func nonEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
