package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/search"
)

// 单次搜索最多翻页数
const maxPages = 10

// Client SearXNG API 客户端
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient 创建一个新的 SearXNG 客户端，timeout 单位为秒
func NewClient(baseURL string, timeout int) *Client {
	t := time.Duration(timeout) * time.Second
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: t},
	}
}

// Ensure Client implements search.Searcher
var _ search.Searcher = (*Client)(nil)

// SearchResponse SearXNG 响应结构
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// SearchResult SearXNG 单条结果
type SearchResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	PublishedDate string `json:"publishedDate"`
}

// Search 逐页请求，直到达到 MaxResults 或某页没有结果
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	out := &search.Response{}
	seen := make(map[string]struct{})

	for page := 1; page <= maxPages; page++ {
		results, err := c.page(ctx, req, page)
		if err != nil {
			if page > 1 {
				// 已有部分结果时保留已拿到的数据
				logger.Log.Warnf("SearXNG 第 %d 页请求失败: %v", page, err)
				break
			}
			return nil, err
		}
		if len(results) == 0 {
			break
		}
		for _, r := range results {
			if _, ok := seen[r.URL]; ok || r.URL == "" {
				continue
			}
			seen[r.URL] = struct{}{}
			out.Results = append(out.Results, search.Result{
				Title:         r.Title,
				URL:           r.URL,
				Content:       r.Content,
				PublishedDate: r.PublishedDate,
			})
		}
		if req.MaxResults > 0 && len(out.Results) >= req.MaxResults {
			break
		}
	}

	out.Limit(req.MaxResults)
	return out, nil
}

func (c *Client) page(ctx context.Context, req *search.Request, page int) ([]SearchResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = "/search"

	q := u.Query()
	q.Set("q", req.Query)
	q.Set("format", "json")
	q.Set("pageno", strconv.Itoa(page))
	if req.Topic == "general" {
		q.Set("categories", "general")
	} else {
		q.Set("categories", "news")
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	// 添加 User-Agent 避免被简单的反爬虫策略拦截
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("searxng api error (status %d): %s", res.StatusCode, string(body))
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}
	return searchResp.Results, nil
}
