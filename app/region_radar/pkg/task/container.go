// Package task 生成采集任务，并按三个幂等阶段执行单个任务。
package task

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/filestore"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/postprocess"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/tpl"
)

// State 容器所处的阶段
type State int

const (
	Created State = iota
	ProcessedFetched
	RawAssembled
	PostProcessed
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case ProcessedFetched:
		return "PROCESSED_FETCHED"
	case RawAssembled:
		return "RAW_ASSEMBLED"
	case PostProcessed:
		return "POST_PROCESSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Container 一个维度组合对应的采集任务
type Container struct {
	name     string
	sources  []string
	toParse  map[string][]model.SubQuery
	metadata map[string]string
	params   config.Parameters
	saveTo   model.SaveTo
	steps    []postprocess.Step
	hash     string
	state    State
}

// New 创建容器并计算内容哈希。sources 决定阶段一中数据源的执行顺序
func New(name string, sources []string, toParse map[string][]model.SubQuery, metadata map[string]string,
	params config.Parameters, saveTo model.SaveTo, steps []postprocess.Step) *Container {
	c := &Container{
		name:     name,
		toParse:  make(map[string][]model.SubQuery, len(toParse)),
		metadata: model.CloneMetadata(metadata),
		params:   params,
		saveTo:   saveTo,
		steps:    append([]postprocess.Step(nil), steps...),
	}
	if c.metadata == nil {
		c.metadata = map[string]string{}
	}
	for k, v := range toParse {
		c.toParse[k] = append([]model.SubQuery(nil), v...)
	}
	c.sources = orderSources(sources, c.toParse)
	c.hash = contentHash(c.toParse, c.metadata)
	return c
}

// orderSources 按给定顺序排列 toParse 中的数据源，未列出的按名称追加
func orderSources(sources []string, toParse map[string][]model.SubQuery) []string {
	seen := make(map[string]bool, len(toParse))
	var out []string
	for _, s := range sources {
		if _, ok := toParse[s]; ok && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	var rest []string
	for s := range toParse {
		if !seen[s] {
			rest = append(rest, s)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// contentHash 对 to_parse 与 metadata 的规范 JSON 计算 MD5；encoding/json 会按键排序输出 map
func contentHash(toParse map[string][]model.SubQuery, metadata map[string]string) string {
	a, _ := json.Marshal(toParse)
	b, _ := json.Marshal(metadata)
	sum := md5.Sum(append(a, b...))
	return hex.EncodeToString(sum[:])
}

// Name 容器名称
func (c *Container) Name() string { return c.name }

// Hash 内容哈希
func (c *Container) Hash() string { return c.hash }

// State 当前阶段
func (c *Container) State() State { return c.state }

// Sources 按执行顺序返回数据源
func (c *Container) Sources() []string { return append([]string(nil), c.sources...) }

// Metadata 返回元数据副本
func (c *Container) Metadata() map[string]string { return model.CloneMetadata(c.metadata) }

// Queries 返回数据源的子查询
func (c *Container) Queries(source string) []model.SubQuery {
	return append([]model.SubQuery(nil), c.toParse[source]...)
}

// Params 参数快照
func (c *Container) Params() config.Parameters { return c.params }

// Equal 两个容器的 to_parse 与 metadata 相同即相等
func (c *Container) Equal(other *Container) bool {
	if other == nil {
		return false
	}
	return reflect.DeepEqual(c.toParse, other.toParse) && reflect.DeepEqual(c.metadata, other.metadata)
}

// BaseName 用元数据填充文件名基础模板
func (c *Container) BaseName() (string, error) {
	return tpl.Format(c.params.TemplatesFilenameBase, c.metadata)
}

// SourceFile 返回数据源在 processed 目录下的输出文件路径
func (c *Container) SourceFile(source, ext string) (string, error) {
	tmpl, ok := c.params.TemplatesFilename[source]
	if !ok {
		return "", fmt.Errorf("no filename template for source %s", source)
	}
	name, err := tpl.Format(tmpl, c.metadata)
	if err != nil {
		return "", err
	}
	return filestore.Path(c.params.OutputDir(source), source, name, ext), nil
}

// StageFile 返回阶段输出的 JSON 文件路径
func (c *Container) StageFile(stage string) (string, error) {
	base, err := c.BaseName()
	if err != nil {
		return "", err
	}
	return filestore.Path(c.params.OutputDir(stage), stage, base, "json"), nil
}

// Statistics 输出容器概要
func (c *Container) Statistics(stage string) {
	logger.Log.Infof("容器 (%s) %s: %v", stage, c.name, c.metadata)
	logger.Log.Infof("保存格式: %v, 数据源: %v", c.saveTo.Extensions(), c.sources)
}
