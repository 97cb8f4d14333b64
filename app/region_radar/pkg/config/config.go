package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

// 维度名称，与文件名模板中的占位符一致
const (
	DimSources    = "AVAILABLE_SOURCES"
	DimRegions    = "AVAILABLE_REGIONS"
	DimCategories = "AVAILABLE_CATEGORIES"
	DimPeriod     = "PERIOD"
	DimDateFrom   = "DATE_FROM"
)

// Config 项目配置结构体，由多个配置段合并而成
type Config struct {
	Name        string            `yaml:"name"`
	API         APIConfig         `yaml:"api"`
	Parser      ParserConfig      `yaml:"parser"`
	Storage     StorageConfig     `yaml:"storage"`
	Region      RegionConfig      `yaml:"region"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Mail        MailConfig        `yaml:"mail"`
	LLM         LLMConfig         `yaml:"llm"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	DB          DBConfig          `yaml:"db"`
}

// APIConfig 外部接口与鉴权配置
type APIConfig struct {
	Tavily            TavilyConfig   `yaml:"tavily"`
	SearXNG           SearXNGConfig  `yaml:"searxng"`
	Telegram          TelegramConfig `yaml:"telegram"`
	Browser           BrowserConfig  `yaml:"browser"`
	ScrapeDoToken     string         `yaml:"scrape_do_token"`
	ScraperAPIKey     string         `yaml:"scraperapi_key"`
	ScraperAPICountry string         `yaml:"scraperapi_country"`
	Proxy             string         `yaml:"proxy"`
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig SearXNG 配置
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

// TelegramConfig 频道抓取配置，mode 为 preview 或 rss
type TelegramConfig struct {
	Mode        string `yaml:"mode"`
	BaseURL     string `yaml:"base_url"`
	RSSTemplate string `yaml:"rss_template"`
}

// BrowserConfig 无头浏览器配置
type BrowserConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Headless *bool  `yaml:"headless"`
	ExecPath string `yaml:"exec_path"`
}

// ParserConfig 采集任务配置
type ParserConfig struct {
	Sources               []string            `yaml:"sources"`
	Categories            []string            `yaml:"categories"`
	Period                string              `yaml:"period"`
	DateFrom              string              `yaml:"date_from"`
	MonthBegin            string              `yaml:"month_begin"`
	SaveTo                *model.SaveTo       `yaml:"save_to"`
	SearchLimits          map[string]int      `yaml:"search_limits"`
	TemplatesFilenameBase string              `yaml:"templates_filename_base"`
	TemplatesFilename     map[string]string   `yaml:"templates_filename"`
	TemplatesParse        map[string]string   `yaml:"templates_parse"`
	CategoriesSearch      map[string][]string `yaml:"categories_search"`
	CategoriesTelegram    map[string][]string `yaml:"categories_telegram"`
	PostProcessing        []string            `yaml:"post_processing"`
	TrustedDomains        []string            `yaml:"trusted_domains"`
	TrustedChannels       []string            `yaml:"trusted_channels"`
}

// StorageConfig 输出目录配置
type StorageConfig struct {
	OutputDirProcessed      string `yaml:"output_dir_processed"`
	OutputDirRaw            string `yaml:"output_dir_raw"`
	OutputDirPostProcessing string `yaml:"output_dir_post_processing"`
}

// RegionConfig 地区及其关键词
type RegionConfig struct {
	Regions  []string            `yaml:"regions"`
	Keywords map[string][]string `yaml:"keywords"`
}

// FetchConfig 网页正文抓取配置
type FetchConfig struct {
	Workers         int  `yaml:"workers"`
	PageTimeoutMS   int  `yaml:"page_timeout_ms"`
	BrowserFallback bool `yaml:"browser_fallback"`
}

// ArchiveConfig 归档配置
type ArchiveConfig struct {
	Extensions []string `yaml:"extensions"`
	MaxSizeMB  float64  `yaml:"max_size_mb"`
}

// MailConfig 邮件发送配置
type MailConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	Recipient     string `yaml:"recipient"`
	SubjectPrefix string `yaml:"subject_prefix"`
	BodyText      string `yaml:"body_text"`
	FilePattern   string `yaml:"file_pattern"`
	SortByNumber  *bool  `yaml:"sort_by_number"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Threshold int    `yaml:"threshold"`
}

// DBConfig 运行记录数据库配置，driver 为 postgres 或 sqlite3
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// LoadConfig 按顺序加载并合并多个配置文件，后面的文件覆盖前面的配置段
func LoadConfig(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no config file given")
	}

	var cfg Config
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.ApplyDefaults(time.Now()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 未在文件中配置的密钥从环境变量读取
func (c *Config) applyEnv() {
	setFromEnv(&c.API.Tavily.APIKey, "TAVILY_API_KEY")
	setFromEnv(&c.API.ScrapeDoToken, "SCRAPE_DO_TOKEN")
	setFromEnv(&c.API.ScraperAPIKey, "SCRAPERAPI_KEY")
	setFromEnv(&c.Mail.Username, "MAIL_USERNAME")
	setFromEnv(&c.Mail.Password, "MAIL_PASSWORD")
	setFromEnv(&c.Mail.Recipient, "MAIL_RECIPIENT")
	setFromEnv(&c.LLM.APIKey, "LLM_API_KEY")
	setFromEnv(&c.DB.Password, "DB_PASSWORD")
}

func setFromEnv(dst *string, key string) {
	if *dst != "" {
		return
	}
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

// Validate 检查配置结构是否完整
func (c *Config) Validate() error {
	if c.Parser.TemplatesFilenameBase == "" {
		return fmt.Errorf("parser.templates_filename_base is required")
	}
	if len(c.Parser.TemplatesFilename) == 0 {
		return fmt.Errorf("parser.templates_filename is required")
	}
	for source, limit := range c.Parser.SearchLimits {
		if limit <= 0 {
			return fmt.Errorf("search limit for %s must be positive, got %d", source, limit)
		}
	}
	if c.Parser.SaveTo != nil && len(c.Parser.SaveTo.Extensions()) == 0 {
		return fmt.Errorf("parser.save_to must enable to_json or to_excel")
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be positive")
	}
	if c.Archive.MaxSizeMB <= 0 {
		return fmt.Errorf("archive.max_size_mb must be positive")
	}
	switch c.API.Telegram.Mode {
	case "preview", "rss":
	default:
		return fmt.Errorf("unknown telegram mode %q", c.API.Telegram.Mode)
	}
	switch c.DB.Driver {
	case "", "postgres", "sqlite3":
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}
	return nil
}

// Dimensions 返回参与笛卡尔积的全部维度，标量按单元素列表处理
func (c *Config) Dimensions() map[string][]string {
	dims := map[string][]string{
		DimSources:    append([]string(nil), c.Parser.Sources...),
		DimRegions:    append([]string(nil), c.Region.Regions...),
		DimCategories: append([]string(nil), c.Parser.Categories...),
	}
	if c.Parser.Period != "" {
		dims[DimPeriod] = []string{c.Parser.Period}
	}
	if c.Parser.DateFrom != "" {
		dims[DimDateFrom] = []string{c.Parser.DateFrom}
	}
	return dims
}

// SearchLimit 返回数据源的基础结果数
func (c *Config) SearchLimit(source string) int {
	if v, ok := c.Parser.SearchLimits[source]; ok {
		return v
	}
	return defaultSearchLimit(source)
}

// SortedCategories 返回分类体系中的全部分类名
func (c *Config) SortedCategories() []string {
	cats := make([]string, 0, len(c.Parser.CategoriesSearch))
	for k := range c.Parser.CategoriesSearch {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	return cats
}
