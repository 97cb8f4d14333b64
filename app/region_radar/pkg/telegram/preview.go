package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// 向前翻页的最大次数
const maxPreviewPages = 50

// preview 解析 t.me/s/{channel} 网页预览
type preview struct {
	baseURL string
	client  *http.Client
}

func (p *preview) messages(ctx context.Context, channel string, keep func(Message) bool) error {
	before := 0
	for page := 0; page < maxPreviewPages; page++ {
		msgs, err := p.page(ctx, channel, before)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		// 页面内按时间正序排列
		for i := len(msgs) - 1; i >= 0; i-- {
			if !keep(msgs[i]) {
				return nil
			}
		}
		oldest := msgs[0].ID
		if oldest <= 1 || (before != 0 && oldest >= before) {
			return nil
		}
		before = oldest
	}
	return nil
}

func (p *preview) page(ctx context.Context, channel string, before int) ([]Message, error) {
	u := fmt.Sprintf("%s/s/%s", p.baseURL, channel)
	if before > 0 {
		u += "?before=" + strconv.Itoa(before)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram preview error (status %d)", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse preview: %w", err)
	}
	return parsePreview(doc), nil
}

// parsePreview 提取消息文本、加粗文本、发布时间与永久链接
func parsePreview(doc *goquery.Document) []Message {
	var msgs []Message
	doc.Find(".tgme_widget_message_wrap").Each(func(_ int, wrap *goquery.Selection) {
		msg := wrap.Find(".tgme_widget_message").First()
		post, _ := msg.Attr("data-post")
		id := 0
		if i := strings.LastIndex(post, "/"); i >= 0 {
			id, _ = strconv.Atoi(post[i+1:])
		}

		textSel := msg.Find(".tgme_widget_message_text").First()
		textSel.Find("br").ReplaceWithHtml("\n")
		bold := textSel.Find("b, strong").First().Text()

		m := Message{
			ID:   id,
			Text: strings.TrimSpace(textSel.Text()),
			Bold: strings.TrimSpace(bold),
		}
		dateLink := msg.Find("a.tgme_widget_message_date").First()
		m.Link, _ = dateLink.Attr("href")
		if dt, ok := dateLink.Find("time").Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				m.Date = t
			}
		}
		msgs = append(msgs, m)
	})
	return msgs
}
