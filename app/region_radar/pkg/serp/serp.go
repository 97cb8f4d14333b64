// Package serp 抓取并解析搜索引擎结果页 (Google、Yandex)。
package serp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/browser"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/search"
)

// 每页结果数
const pageSize = 10

// Link 结果页中的一条自然结果
type Link struct {
	URL   string
	Title string
}

// Engine 搜索引擎的翻页地址与结果页解析规则
type Engine interface {
	Name() string
	PageURL(query string, page int) string
	Parse(doc *goquery.Document) []Link
}

// Client 渲染结果页并解析链接，实现 search.Searcher
type Client struct {
	engine   Engine
	renderer browser.Renderer
	limiter  *rate.Limiter
}

// NewClient 创建结果页客户端；limiter 为 nil 时不限速
func NewClient(engine Engine, renderer browser.Renderer, limiter *rate.Limiter) *Client {
	return &Client{engine: engine, renderer: renderer, limiter: limiter}
}

var _ search.Searcher = (*Client)(nil)

// Search 按 ceil(MaxResults/10) 翻页，收集到上限即停止，链接去重
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	limit := req.MaxResults
	if limit <= 0 {
		limit = pageSize
	}
	pages := (limit + pageSize - 1) / pageSize

	out := &search.Response{}
	seen := make(map[string]struct{})
	for page := 1; page <= pages && len(out.Results) < limit; page++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		pageURL := c.engine.PageURL(req.Query, page)
		html, err := c.renderer.Render(ctx, pageURL)
		if err != nil {
			if page > 1 {
				logger.Log.Warnf("%s 第 %d 页加载失败，停止翻页: %v", c.engine.Name(), page, err)
				break
			}
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("parse %s page %d: %w", c.engine.Name(), page, err)
		}

		links := c.engine.Parse(doc)
		if len(links) == 0 {
			logger.Log.Warnf("%s 第 %d 页没有解析到结果", c.engine.Name(), page)
			break
		}
		for _, l := range links {
			if _, ok := seen[l.URL]; ok {
				continue
			}
			seen[l.URL] = struct{}{}
			out.Results = append(out.Results, search.Result{URL: l.URL, Title: l.Title})
		}
	}

	out.Limit(limit)
	logger.Log.Infof("%s 查询完成: %d 条结果", c.engine.Name(), len(out.Results))
	return out, nil
}

// ScrapeDo 通过 scrape.do 代理获取页面，不需要本地浏览器
type ScrapeDo struct {
	token    string
	endpoint string
	client   *http.Client
}

// NewScrapeDo 创建 scrape.do 渲染器
func NewScrapeDo(token string) *ScrapeDo {
	return &ScrapeDo{
		token:    token,
		endpoint: "http://api.scrape.do/",
		client:   &http.Client{Timeout: 90 * time.Second},
	}
}

var _ browser.Renderer = (*ScrapeDo)(nil)

// Render implements browser.Renderer
func (s *ScrapeDo) Render(ctx context.Context, target string) (string, error) {
	u := s.endpoint + "?url=" + url.QueryEscape(target) + "&token=" + url.QueryEscape(s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape.do request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read body failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scrape.do error (status %d): %s", res.StatusCode, truncate(string(body), 200))
	}
	return string(body), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
