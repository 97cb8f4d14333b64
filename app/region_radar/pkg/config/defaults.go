package config

import (
	"fmt"
	"time"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

const (
	DefaultName          = "MacroRegion"
	DefaultFilenameBase  = "{AVAILABLE_CATEGORIES}_{AVAILABLE_REGIONS}_{PERIOD}_{DATE_FROM}"
	DefaultTelegramURL   = "https://t.me/s/{CHANNEL_NAME}"
	DefaultSearchLimit   = 10
	DefaultTelegramLimit = 100
)

var monthNames = map[time.Month]string{
	time.January: "Январь", time.February: "Февраль", time.March: "Март",
	time.April: "Апрель", time.May: "Май", time.June: "Июнь",
	time.July: "Июль", time.August: "Август", time.September: "Сентябрь",
	time.October: "Октябрь", time.November: "Ноябрь", time.December: "Декабрь",
}

// MonthBegin 返回 t 所在月份的第一天
func MonthBegin(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// PreviousPeriod 返回 monthBegin 上一个月的俄文名称与年份，例如 "Август 2025"
func PreviousPeriod(monthBegin time.Time) string {
	last := monthBegin.AddDate(0, 0, -1)
	return fmt.Sprintf("%s %d", monthNames[last.Month()], last.Year())
}

func defaultSearchLimit(source string) int {
	if source == model.SourceTelegram {
		return DefaultTelegramLimit
	}
	return DefaultSearchLimit
}

// ApplyDefaults 填充默认值；PERIOD 与 DATE_FROM 根据 month_begin 推算
func (c *Config) ApplyDefaults(now time.Time) error {
	if c.Name == "" {
		c.Name = DefaultName
	}

	p := &c.Parser
	if len(p.Sources) == 0 {
		p.Sources = []string{model.SourceGoogle, model.SourceTavily, model.SourceTelegram}
	}
	if len(p.Categories) == 0 {
		p.Categories = c.SortedCategories()
	}
	if p.SaveTo == nil {
		p.SaveTo = &model.SaveTo{JSON: true}
	}

	begin := MonthBegin(now)
	if p.MonthBegin != "" {
		t, err := time.Parse(time.DateOnly, p.MonthBegin)
		if err != nil {
			return fmt.Errorf("parser.month_begin must be YYYY-MM-DD: %w", err)
		}
		begin = t
	}
	if p.Period == "" {
		p.Period = PreviousPeriod(begin)
	}
	if p.DateFrom == "" {
		p.DateFrom = begin.Format(time.DateOnly)
	}

	if p.TemplatesFilenameBase == "" {
		p.TemplatesFilenameBase = DefaultFilenameBase
	}
	if p.TemplatesFilename == nil {
		p.TemplatesFilename = map[string]string{
			model.SourceGoogle:   DefaultFilenameBase,
			model.SourceYandex:   DefaultFilenameBase,
			model.SourceSearXNG:  DefaultFilenameBase,
			model.SourceTavily:   DefaultFilenameBase,
			model.SourceTelegram: "{AVAILABLE_CATEGORIES}_BASE_{PERIOD}_{DATE_FROM}",
		}
	}
	if p.TemplatesParse == nil {
		p.TemplatesParse = map[string]string{
			model.SourceGoogle:   "({SUBCATEGORIES}) {AVAILABLE_REGIONS} {PERIOD} after:{DATE_FROM}",
			model.SourceYandex:   "({SUBCATEGORIES}) {AVAILABLE_REGIONS} {PERIOD}",
			model.SourceSearXNG:  "({SUBCATEGORIES}) {AVAILABLE_REGIONS} {PERIOD}",
			model.SourceTavily:   "({SUBCATEGORIES}) {AVAILABLE_REGIONS} {PERIOD}",
			model.SourceTelegram: DefaultTelegramURL,
		}
	}
	if p.PostProcessing == nil {
		p.PostProcessing = []string{"filter_raw_data_by_region", "clean_sensitive_content"}
	}

	s := &c.Storage
	if s.OutputDirProcessed == "" {
		s.OutputDirProcessed = "output/processed"
	}
	if s.OutputDirRaw == "" {
		s.OutputDirRaw = "output/raw"
	}
	if s.OutputDirPostProcessing == "" {
		s.OutputDirPostProcessing = "output/post_processing"
	}

	if c.API.Telegram.Mode == "" {
		c.API.Telegram.Mode = "preview"
	}
	if c.API.Telegram.BaseURL == "" {
		c.API.Telegram.BaseURL = "https://t.me"
	}

	if c.Fetch.Workers == 0 {
		c.Fetch.Workers = 6
	}
	if c.Fetch.PageTimeoutMS == 0 {
		c.Fetch.PageTimeoutMS = 15000
	}

	if len(c.Archive.Extensions) == 0 {
		c.Archive.Extensions = []string{"json"}
	}
	if c.Archive.MaxSizeMB == 0 {
		c.Archive.MaxSizeMB = 80
	}

	m := &c.Mail
	if m.Host == "" {
		m.Host = "smtp.gmail.com"
	}
	if m.Port == 0 {
		m.Port = 587
	}
	if m.SubjectPrefix == "" {
		m.SubjectPrefix = "Архив "
	}
	if m.BodyText == "" {
		m.BodyText = "Архив: "
	}
	if m.FilePattern == "" {
		m.FilePattern = "archive_*.zip"
	}
	if m.SortByNumber == nil {
		sortByNumber := true
		m.SortByNumber = &sortByNumber
	}

	if c.LLM.Threshold == 0 {
		c.LLM.Threshold = 5
	}
	if c.Concurrency.QPS == 0 {
		c.Concurrency.QPS = 1
	}
	if c.Concurrency.RPM == 0 {
		c.Concurrency.RPM = 60
	}
	return nil
}
