package serp

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

// Google 结果页规则
type Google struct{}

var googleSelectors = []string{"div.g a", "div.tF2Cxc a", "div.MjjYud a", "h3 a"}

func (Google) Name() string { return model.SourceGoogle }

func (Google) PageURL(query string, page int) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("num", strconv.Itoa(pageSize))
	v.Set("start", strconv.Itoa((page-1)*pageSize))
	return "https://www.google.com/search?" + v.Encode()
}

// Parse 依次尝试选择器，第一个命中的选择器生效；只保留站外绝对链接
func (Google) Parse(doc *goquery.Document) []Link {
	var links []Link
	for _, sel := range googleSelectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		seen := make(map[string]struct{})
		found.Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !strings.HasPrefix(href, "http") || strings.Contains(href, "google.com") {
				return
			}
			if _, ok := seen[href]; ok {
				return
			}
			seen[href] = struct{}{}
			title := strings.TrimSpace(a.Text())
			if title == "" {
				title = "No title"
			}
			links = append(links, Link{URL: href, Title: truncate(title, 200)})
		})
		break
	}
	return links
}

// Yandex 结果页规则
type Yandex struct{}

func (Yandex) Name() string { return model.SourceYandex }

// PageURL within=1 限定最近两周，p 从 0 开始
func (Yandex) PageURL(query string, page int) string {
	v := url.Values{}
	v.Set("text", query)
	v.Set("p", strconv.Itoa(page-1))
	v.Set("within", "1")
	return "https://yandex.ru/search/?" + v.Encode()
}

// Parse 跳过广告条目
func (Yandex) Parse(doc *goquery.Document) []Link {
	var links []Link
	doc.Find(".serp-item").Each(func(_ int, item *goquery.Selection) {
		if item.Find(".label_theme_ad").Length() > 0 {
			return
		}
		a := item.Find(".OrganicTitle-Link, .serp-item__title").First()
		if a.Length() == 0 {
			a = item.Find("h2 a").First()
		}
		href, _ := a.Attr("href")
		title := strings.TrimSpace(a.Text())
		if title == "" || !strings.HasPrefix(href, "http") {
			return
		}
		links = append(links, Link{URL: href, Title: truncate(title, 200)})
	})
	return links
}
