package config

import (
	"strings"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

// Authentication 连接器使用的密钥
type Authentication struct {
	TavilyAPIKey      string
	ScrapeDoToken     string
	ScraperAPIKey     string
	ScraperAPICountry string
}

// Parameters 单个任务使用的全局配置快照，构造后不再修改
type Parameters struct {
	Authentication          Authentication
	TemplatesFilenameBase   string
	TemplatesFilename       map[string]string
	TemplatesParse          map[string]string
	SearchLimits            map[string]int
	TrustedDomains          []string
	TrustedChannels         []string
	Subcategories           []string
	RegionKeys              []string
	OutputDirProcessed      string
	OutputDirRaw            string
	OutputDirPostProcessing string
	Proxy                   string
}

// Snapshot 为一个任务构造参数快照；subcategories 与 regionKeys 由调用方显式传入
func (c *Config) Snapshot(subcategories, regionKeys []string) Parameters {
	limits := make(map[string]int, len(c.Parser.SearchLimits))
	for k, v := range c.Parser.SearchLimits {
		limits[k] = v
	}
	return Parameters{
		Authentication: Authentication{
			TavilyAPIKey:      c.API.Tavily.APIKey,
			ScrapeDoToken:     c.API.ScrapeDoToken,
			ScraperAPIKey:     c.API.ScraperAPIKey,
			ScraperAPICountry: c.API.ScraperAPICountry,
		},
		TemplatesFilenameBase:   c.Parser.TemplatesFilenameBase,
		TemplatesFilename:       copyStrings(c.Parser.TemplatesFilename),
		TemplatesParse:          copyStrings(c.Parser.TemplatesParse),
		SearchLimits:            limits,
		TrustedDomains:          lowerAll(c.Parser.TrustedDomains),
		TrustedChannels:         lowerAll(c.Parser.TrustedChannels),
		Subcategories:           append([]string(nil), subcategories...),
		RegionKeys:              append([]string(nil), regionKeys...),
		OutputDirProcessed:      c.Storage.OutputDirProcessed,
		OutputDirRaw:            c.Storage.OutputDirRaw,
		OutputDirPostProcessing: c.Storage.OutputDirPostProcessing,
		Proxy:                   c.API.Proxy,
	}
}

// SearchLimit 返回数据源的基础结果数
func (p Parameters) SearchLimit(source string) int {
	if v, ok := p.SearchLimits[source]; ok {
		return v
	}
	return defaultSearchLimit(source)
}

// OutputDir 返回阶段或数据源对应的输出目录
func (p Parameters) OutputDir(stage string) string {
	switch stage {
	case model.StageRaw:
		return p.OutputDirRaw
	case model.StagePostProcessing:
		return p.OutputDirPostProcessing
	default:
		return p.OutputDirProcessed
	}
}

// Approved 判断链接或频道名是否包含可信域名或可信频道
func (p Parameters) Approved(source string) bool {
	s := strings.ToLower(source)
	for _, d := range p.TrustedDomains {
		if d != "" && strings.Contains(s, d) {
			return true
		}
	}
	for _, ch := range p.TrustedChannels {
		if ch != "" && strings.Contains(s, ch) {
			return true
		}
	}
	return false
}

// IsHeadless 未配置时默认无头模式
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
