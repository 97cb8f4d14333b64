// Package browser 封装 chromedp 无头浏览器，用于渲染需要执行 JavaScript 的页面。
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Renderer 返回页面渲染后的 HTML
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Browser 共享一个浏览器进程，每次渲染打开一个新标签页
type Browser struct {
	cfg config.BrowserConfig

	once          sync.Once
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	startErr      error
}

// New 创建浏览器，进程在第一次渲染时启动
func New(cfg config.BrowserConfig) *Browser {
	return &Browser{cfg: cfg}
}

var _ Renderer = (*Browser)(nil)

func (b *Browser) start() error {
	b.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", b.cfg.IsHeadless()),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.UserAgent(userAgent),
		)
		if b.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
		}

		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)
		// 空任务列表即可拉起浏览器进程
		if err := chromedp.Run(b.browserCtx); err != nil {
			b.startErr = fmt.Errorf("start browser: %w", err)
			b.browserCancel()
			b.allocCancel()
			return
		}
		logger.Log.Info("无头浏览器已启动")
	})
	return b.startErr
}

// Render 打开页面并等待 body 就绪后返回完整 HTML
func (b *Browser) Render(ctx context.Context, url string) (string, error) {
	if err := b.start(); err != nil {
		return "", err
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var tcancel context.CancelFunc
		tabCtx, tcancel = context.WithDeadline(tabCtx, deadline)
		defer tcancel()
	} else {
		var tcancel context.CancelFunc
		tabCtx, tcancel = context.WithTimeout(tabCtx, 60*time.Second)
		defer tcancel()
	}
	// 调用方取消时同步关闭标签页
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

// Close 关闭浏览器进程
func (b *Browser) Close() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}
