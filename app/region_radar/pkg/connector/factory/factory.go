package factory

import (
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/browser"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/connector"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/searxng"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/serp"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/tavily"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/telegram"
)

// ErrUnknownSource 配置中出现无法识别的数据源
var ErrUnknownSource = errors.New("unknown source")

// NewRegistry 根据配置为每个启用的数据源创建连接器；renderer 用于渲染搜索结果页。
// 缺少凭据等无法创建的连接器记录日志后跳过，未知数据源返回错误
func NewRegistry(cfg *config.Config, renderer browser.Renderer) (connector.Registry, error) {
	reg := make(connector.Registry, len(cfg.Parser.Sources))
	for _, source := range cfg.Parser.Sources {
		c, err := newConnector(cfg, source, renderer)
		if errors.Is(err, ErrUnknownSource) {
			return nil, err
		}
		if err != nil {
			logger.Log.Errorf("数据源 %s 不可用，已跳过: %v", source, err)
			continue
		}
		reg[source] = c
	}
	return reg, nil
}

func newConnector(cfg *config.Config, source string, renderer browser.Renderer) (connector.Connector, error) {
	switch source {
	case model.SourceTavily:
		apiKey := cfg.API.Tavily.APIKey
		if apiKey == "" {
			return nil, fmt.Errorf("tavily api key is missing")
		}
		client := tavily.NewClient(apiKey, tavily.WithLimiter(limiter(cfg)))
		return &connector.SearchConnector{Name: source, Searcher: client, Topic: "general"}, nil

	case model.SourceSearXNG:
		baseURL := cfg.API.SearXNG.BaseURL
		if baseURL == "" {
			return nil, fmt.Errorf("searxng base url is missing")
		}
		return &connector.SearchConnector{Name: source, Searcher: searxng.NewClient(baseURL, cfg.API.SearXNG.Timeout), Topic: "news"}, nil

	case model.SourceGoogle, model.SourceYandex:
		r := renderer
		if cfg.API.ScrapeDoToken != "" {
			r = serp.NewScrapeDo(cfg.API.ScrapeDoToken)
		}
		if r == nil {
			return nil, fmt.Errorf("%s requires api.browser.enabled or api.scrape_do_token", source)
		}
		var engine serp.Engine = serp.Google{}
		if source == model.SourceYandex {
			engine = serp.Yandex{}
		}
		return &connector.SearchConnector{Name: source, Searcher: serp.NewClient(engine, r, limiter(cfg))}, nil

	case model.SourceTelegram:
		return telegram.NewCollector(cfg.API.Telegram)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
}

// limiter 按 concurrency.qps 限制请求速率
func limiter(cfg *config.Config) *rate.Limiter {
	qps := cfg.Concurrency.QPS
	if qps <= 0 {
		qps = 1
	}
	return rate.NewLimiter(rate.Limit(qps), 1)
}
