package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

func previewMessage(channel string, id int, date, html string) string {
	return fmt.Sprintf(`<div class="tgme_widget_message_wrap js-widget_message_wrap">
<div class="tgme_widget_message js-widget_message" data-post="%s/%d">
<div class="tgme_widget_message_text js-message_text">%s</div>
<div class="tgme_widget_message_footer"><a class="tgme_widget_message_date" href="https://t.me/%s/%d"><time datetime="%s">10:00</time></a></div>
</div></div>`, channel, id, html, channel, id, date)
}

// previewServer serves two pages of a channel: ids 3..4 without before, ids 1..2 with before=3.
func previewServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/s/broken":
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/s/domclick" && r.URL.Query().Get("before") == "":
			fmt.Fprint(w, "<html><body>"+
				previewMessage("domclick", 3, "2025-09-10T09:00:00+00:00", "<b>Ставки по ипотеке</b><br>Банки снизили ставки.")+
				previewMessage("domclick", 4, "2025-09-12T09:00:00+00:00", "Рынок новостроек растёт. Подробности внутри")+
				"</body></html>")
		case r.URL.Path == "/s/domclick" && r.URL.Query().Get("before") == "3":
			fmt.Fprint(w, "<html><body>"+
				previewMessage("domclick", 1, "2025-08-20T09:00:00+00:00", "Старая новость.")+
				previewMessage("domclick", 2, "2025-09-05T09:00:00+00:00", "Сентябрьская сводка.")+
				"</body></html>")
		case r.URL.Path == "/s/undated" && r.URL.Query().Get("before") == "":
			fmt.Fprint(w, "<html><body>"+
				previewMessage("undated", 2, "2025-09-03T09:00:00+00:00", "Ранняя сводка.")+
				previewMessage("undated", 3, "вчера", "Пост без даты.")+
				previewMessage("undated", 4, "2025-09-12T09:00:00+00:00", "Свежая сводка.")+
				"</body></html>")
		default:
			fmt.Fprint(w, "<html><body></body></html>")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

var meta = map[string]string{config.DimDateFrom: "2025-09-01"}

// TestPreviewCollect verifies newest-first paging stops at DATE_FROM and the record shape.
func TestPreviewCollect(t *testing.T) {
	srv := previewServer(t)
	c, err := NewCollector(config.TelegramConfig{Mode: "preview", BaseURL: srv.URL})
	require.NoError(t, err)

	queries := []model.SubQuery{{Query: "https://t.me/s/domclick", ResultLimit: 100}}
	recs, err := c.Collect(context.Background(), queries, config.Parameters{}, meta)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "https://t.me/s/domclick", recs[0].URL)
	assert.Equal(t, "Рынок новостроек растёт", recs[0].Title)
	assert.Equal(t, "Ставки по ипотеке", recs[1].Title)
	assert.Contains(t, recs[1].RawData, "Банки снизили ставки.")
	assert.Equal(t, "Сентябрьская сводка.", recs[2].RawData)
}

// TestPreviewCollectLimit verifies the per-channel limit.
func TestPreviewCollectLimit(t *testing.T) {
	srv := previewServer(t)
	c, err := NewCollector(config.TelegramConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	queries := []model.SubQuery{{Query: "https://t.me/s/domclick", ResultLimit: 1}}
	recs, err := c.Collect(context.Background(), queries, config.Parameters{}, meta)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Рынок новостроек растёт. Подробности внутри", recs[0].RawData)
}

// TestPreviewCollectSkipsUndated verifies a message without a parsable date is dropped without ending the channel.
func TestPreviewCollectSkipsUndated(t *testing.T) {
	srv := previewServer(t)
	c, err := NewCollector(config.TelegramConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	queries := []model.SubQuery{{Query: "https://t.me/s/undated", ResultLimit: 10}}
	recs, err := c.Collect(context.Background(), queries, config.Parameters{}, meta)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Свежая сводка.", recs[0].RawData)
	assert.Equal(t, "Ранняя сводка.", recs[1].RawData)
}

// TestCollectSkipsFailingChannel verifies one broken channel does not stop the others.
func TestCollectSkipsFailingChannel(t *testing.T) {
	srv := previewServer(t)
	c, err := NewCollector(config.TelegramConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	queries := []model.SubQuery{
		{Query: "https://t.me/s/broken", ResultLimit: 10},
		{Query: "https://t.me/s/domclick", ResultLimit: 2},
	}
	recs, err := c.Collect(context.Background(), queries, config.Parameters{}, meta)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

// TestRSSCollect verifies the feed mode applies the same date rule.
func TestRSSCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/telegram/channel/domclick", r.URL.Path)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>domclick</title>
<item><title>a</title><link>https://t.me/domclick/1</link><pubDate>Wed, 20 Aug 2025 09:00:00 GMT</pubDate><description>Старое.</description></item>
<item><title>b</title><link>https://t.me/domclick/2</link><pubDate>Fri, 12 Sep 2025 09:00:00 GMT</pubDate><description><![CDATA[<b>Ипотека</b><br/>Ставки снижаются]]></description></item>
</channel></rss>`)
	}))
	defer srv.Close()

	c, err := NewCollector(config.TelegramConfig{Mode: "rss", RSSTemplate: srv.URL + "/telegram/channel/{CHANNEL_NAME}"})
	require.NoError(t, err)

	queries := []model.SubQuery{{Query: "https://t.me/s/domclick", ResultLimit: 10}}
	recs, err := c.Collect(context.Background(), queries, config.Parameters{}, meta)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Ипотека", recs[0].Title)
	assert.Contains(t, recs[0].RawData, "Ставки снижаются")
}

// TestNewCollectorErrors verifies invalid modes are rejected.
func TestNewCollectorErrors(t *testing.T) {
	_, err := NewCollector(config.TelegramConfig{Mode: "rss"})
	assert.Error(t, err)
	_, err = NewCollector(config.TelegramConfig{Mode: "mtproto"})
	assert.Error(t, err)
}

// TestTitleFromPost verifies the bold-or-first-sentence rule and truncation.
func TestTitleFromPost(t *testing.T) {
	assert.Equal(t, "Заголовок", TitleFromPost("Заголовок. Текст", ""))
	assert.Equal(t, "Жирный", TitleFromPost("Текст", " Жирный "))
	long := strings.Repeat("я", 100)
	assert.Equal(t, strings.Repeat("я", 64), TitleFromPost(long, ""))
}

// TestChannelName verifies the channel is the last URL segment.
func TestChannelName(t *testing.T) {
	assert.Equal(t, "domclick", ChannelName("https://t.me/s/domclick"))
	assert.Equal(t, "domclick", ChannelName("https://t.me/s/domclick/"))
	assert.Equal(t, "domclick", ChannelName("domclick"))
}
