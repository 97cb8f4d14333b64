// Package webpage 抓取网页并提取可读正文，用于补全没有 raw_data 的记录。
package webpage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/browser"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
)

// 少于该长度的 HTML 视为加载失败
const minHTMLLength = 100

// 页面 HTML 读取上限
const maxBodyBytes = 10 << 20

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const removedTags = "script, style, nav, footer, header, noscript, iframe"

const adSelectors = `[class*="ads"], [class*="banner"], [class*="advertisement"], [class*="promo"], [id*="ads"], [id*="banner"]`

// FetchError 页面抓取失败
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher 先用 HTTP 抓取，失败或内容过短时使用浏览器渲染
type Fetcher struct {
	client   *http.Client
	renderer browser.Renderer
}

// NewFetcher 创建抓取器；renderer 为 nil 时不使用浏览器兜底
func NewFetcher(client *http.Client, renderer browser.Renderer) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client, renderer: renderer}
}

// Fetch 返回清洗后的页面正文
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", &FetchError{URL: pageURL, Err: fmt.Errorf("invalid url")}
	}

	html, err := f.get(ctx, pageURL)
	if (err != nil || len(strings.TrimSpace(html)) < minHTMLLength) && f.renderer != nil {
		if err != nil {
			logger.Log.Debugf("HTTP 抓取失败，改用浏览器: %s: %v", pageURL, err)
		}
		html, err = f.renderer.Render(ctx, pageURL)
	}
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	if len(strings.TrimSpace(html)) < minHTMLLength {
		return "", &FetchError{URL: pageURL, Err: fmt.Errorf("page too short")}
	}

	text := Extract(html, u)
	if text == "" {
		return "", &FetchError{URL: pageURL, Err: fmt.Errorf("no readable content")}
	}
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")

	res, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Extract 先用 readability 提取正文，失败时退回到去除噪声元素后的 body 文本
func Extract(html string, pageURL *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err == nil {
		if text := Sanitize(article.TextContent); text != "" {
			return text
		}
	}
	return Sanitize(bodyText(html))
}

func bodyText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(removedTags).Remove()
	doc.Find(adSelectors).Remove()

	var lines []string
	collectText(doc.Find("body"), &lines)
	return strings.Join(lines, "\n")
}

// collectText 按文档顺序收集文本节点，每个节点一行
func collectText(sel *goquery.Selection, lines *[]string) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) != "#text" {
			collectText(c, lines)
			return
		}
		if line := strings.TrimSpace(c.Text()); line != "" {
			*lines = append(*lines, line)
		}
	})
}
