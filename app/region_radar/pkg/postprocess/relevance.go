package postprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

// 送入模型的正文最大长度
const maxPromptText = 3000

const relevancePrompt = `你是一名区域新闻编辑。请判断下面这条新闻与指定分类和地区的相关程度。
分类：%s
地区：%s

标题：%s
正文：%s

请务必严格按照以下 JSON 格式返回，不要包含任何 markdown 标记：
{"score": 7, "reason": "一句话理由"}
评分说明：score 为 1-10 的整数，10 表示完全相关。`

// Relevance 使用大模型为记录打分，低于阈值的记录被丢弃
type Relevance struct {
	chatModel  einomodel.BaseChatModel
	limiter    *rate.Limiter
	threshold  int
	maxRetries int
	baseDelay  time.Duration
}

// relevanceScore 模型返回的结构
type relevanceScore struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// NewRelevance 由 llm 配置创建打分步骤
func NewRelevance(ctx context.Context, cfg config.LLMConfig, cc config.ConcurrencyConfig) (*Relevance, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	limiter := rate.NewLimiter(rate.Limit(float64(cc.RPM)/60.0), max(cc.QPS, 1))
	return NewRelevanceWithModel(chatModel, limiter, cfg.Threshold), nil
}

// NewRelevanceWithModel 使用已有模型创建打分步骤
func NewRelevanceWithModel(cm einomodel.BaseChatModel, limiter *rate.Limiter, threshold int) *Relevance {
	return &Relevance{
		chatModel:  cm,
		limiter:    limiter,
		threshold:  threshold,
		maxRetries: 3,
		baseDelay:  2 * time.Second,
	}
}

// Apply 逐条打分；单条打分失败时保留该记录
func (r *Relevance) Apply(ctx context.Context, records []model.Record, _ config.Parameters) ([]model.Record, error) {
	out := make([]model.Record, 0, len(records))
	dropped := 0
	for _, rec := range records {
		score, err := r.score(ctx, rec)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Log.Warnf("相关性打分失败，保留记录 [%s]: %v", host(rec.URL), err)
			out = append(out, rec)
			continue
		}
		if score.Score < r.threshold {
			dropped++
			logger.Log.Debugf("丢弃低相关记录 [%s] score=%d: %s", host(rec.URL), score.Score, score.Reason)
			continue
		}
		out = append(out, rec)
	}
	logger.Log.Infof("相关性过滤完成: 保留 %d 条，丢弃 %d 条", len(out), dropped)
	return out, nil
}

func (r *Relevance) score(ctx context.Context, rec model.Record) (*relevanceScore, error) {
	text := rec.RawData
	if utf8.RuneCountInString(text) > maxPromptText {
		text = string([]rune(text)[:maxPromptText])
	}
	prompt := fmt.Sprintf(relevancePrompt,
		rec.Metadata[config.DimCategories], rec.Metadata[config.DimRegions], rec.Title, text)

	var lastErr error
	for i := 0; i <= r.maxRetries; i++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		messages := []*schema.Message{
			{Role: schema.System, Content: "你是一个 JSON 生成器。请只输出 JSON 字符串。"},
			{Role: schema.User, Content: prompt},
		}
		resp, err := r.chatModel.Generate(ctx, messages)
		if err != nil {
			if isRateLimited(err) && i < r.maxRetries {
				lastErr = err
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(r.baseDelay * time.Duration(1<<i)):
				}
				continue
			}
			return nil, err
		}

		var s relevanceScore
		if err := json.Unmarshal([]byte(cleanJSON(resp.Content)), &s); err != nil {
			lastErr = fmt.Errorf("json unmarshal: %w", err)
			continue
		}
		return &s, nil
	}
	return nil, lastErr
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

// cleanJSON 去掉模型可能附带的 ```json 代码块标记
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
