// Package telegram 采集公开频道的消息：默认解析 t.me/s 网页预览，也可读取 RSS 桥接源。
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/connector"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/tpl"
)

// 标题最多保留的字符数
const titleLength = 64

// Message 频道中的一条消息
type Message struct {
	ID   int
	Text string
	Bold string
	Date time.Time
	Link string
}

// source 按时间倒序返回频道消息，直到 keep 返回 false
type source interface {
	messages(ctx context.Context, channel string, keep func(Message) bool) error
}

// Collector 频道连接器
type Collector struct {
	src source
}

// NewCollector 根据配置选择预览或 RSS 模式
func NewCollector(cfg config.TelegramConfig) (*Collector, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	switch cfg.Mode {
	case "", "preview":
		return &Collector{src: &preview{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: client}}, nil
	case "rss":
		if cfg.RSSTemplate == "" {
			return nil, fmt.Errorf("telegram rss mode requires api.telegram.rss_template")
		}
		return &Collector{src: &rss{template: cfg.RSSTemplate, client: client}}, nil
	default:
		return nil, fmt.Errorf("unknown telegram mode %q", cfg.Mode)
	}
}

var _ connector.Connector = (*Collector)(nil)

// Collect 每条子查询对应一个频道，只保留 DATE_FROM 之后的消息，数量不超过子查询上限。
// 单个频道失败时记录日志并继续处理其余频道。
func (c *Collector) Collect(ctx context.Context, queries []model.SubQuery, params config.Parameters, metadata map[string]string) ([]model.Record, error) {
	dateFrom, err := parseDateFrom(metadata[config.DimDateFrom])
	if err != nil {
		return nil, err
	}

	var records []model.Record
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		channel := ChannelName(q.Query)
		limit := q.ResultLimit
		if limit <= 0 {
			limit = params.SearchLimit(model.SourceTelegram)
		}

		var got []model.Record
		err := c.src.messages(ctx, channel, func(m Message) bool {
			// 无法解析时间的消息不参与日期截止判断
			if m.Date.IsZero() {
				return true
			}
			if !m.Date.After(dateFrom) || len(got) >= limit {
				return false
			}
			if strings.TrimSpace(m.Text) != "" {
				got = append(got, model.Record{URL: q.Query, Title: TitleFromPost(m.Text, m.Bold), RawData: m.Text})
			}
			return len(got) < limit
		})
		if err != nil {
			logger.Log.Warnf("无法获取频道 %s 的消息: %v", channel, err)
			continue
		}
		logger.Log.Infof("频道 %s: %d 条消息", channel, len(got))
		records = append(records, got...)
	}
	return records, nil
}

// ChannelName 取频道链接的最后一段
func ChannelName(query string) string {
	q := strings.TrimRight(query, "/")
	if i := strings.LastIndex(q, "/"); i >= 0 {
		return q[i+1:]
	}
	return q
}

// TitleFromPost 优先使用加粗文本，否则取第一句，截断到 64 个字符
func TitleFromPost(text, bold string) string {
	title := strings.TrimSpace(bold)
	if title == "" {
		title = strings.TrimSpace(strings.SplitN(text, ".", 2)[0])
	}
	r := []rune(title)
	if len(r) > titleLength {
		return string(r[:titleLength])
	}
	return title
}

func parseDateFrom(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("DATE_FROM must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

// channelURL 用于 RSS 模板等以频道名为参数的地址
func channelURL(tmpl, channel string) (string, error) {
	return tpl.Format(tmpl, map[string]string{"CHANNEL_NAME": channel})
}
