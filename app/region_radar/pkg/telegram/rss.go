package telegram

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// rss 通过 RSS 桥接 (例如 rsshub) 读取频道
type rss struct {
	template string
	client   *http.Client
}

func (r *rss) messages(ctx context.Context, channel string, keep func(Message) bool) error {
	u, err := channelURL(r.template, channel)
	if err != nil {
		return err
	}
	fp := gofeed.NewParser()
	fp.Client = r.client
	feed, err := fp.ParseURLWithContext(u, ctx)
	if err != nil {
		return fmt.Errorf("parse feed %s: %w", u, err)
	}

	msgs := make([]Message, 0, len(feed.Items))
	for _, item := range feed.Items {
		m := Message{Link: item.Link}
		switch {
		case item.PublishedParsed != nil:
			m.Date = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			m.Date = *item.UpdatedParsed
		}
		body := item.Content
		if body == "" {
			body = item.Description
		}
		m.Text, m.Bold = htmlText(body)
		if m.Text == "" {
			m.Text = strings.TrimSpace(item.Title)
		}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Date.After(msgs[j].Date) })

	for _, m := range msgs {
		if !keep(m) {
			return nil
		}
	}
	return nil
}

// htmlText 将条目中的 HTML 转为纯文本，并返回第一段加粗文本
func htmlText(fragment string) (string, string) {
	if strings.TrimSpace(fragment) == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment), ""
	}
	doc.Find("br").ReplaceWithHtml("\n")
	bold := doc.Find("b, strong").First().Text()
	return strings.TrimSpace(doc.Text()), strings.TrimSpace(bold)
}
