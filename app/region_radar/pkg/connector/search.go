package connector

import (
	"context"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/search"
)

// SearchConnector 将 search.Searcher 适配为 Connector
type SearchConnector struct {
	Name     string
	Searcher search.Searcher
	Topic    string
}

// Collect 每条子查询执行一次搜索；raw_data 留空由页面抓取阶段补全
func (s *SearchConnector) Collect(ctx context.Context, queries []model.SubQuery, params config.Parameters, metadata map[string]string) ([]model.Record, error) {
	var records []model.Record
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Log.Infof("%s 子查询 %d/%d: %s (limit %d)", s.Name, i+1, len(queries), q.Query, q.ResultLimit)

		resp, err := s.Searcher.Search(ctx, &search.Request{
			Query:      q.Query,
			Topic:      s.Topic,
			MaxResults: q.ResultLimit,
			DateFrom:   metadata[config.DimDateFrom],
		})
		if err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			if r.URL == "" {
				continue
			}
			records = append(records, model.Record{
				URL:     r.URL,
				Title:   r.Title,
				RawData: r.RawContent,
			})
		}
	}
	return records, nil
}
