package connector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/filestore"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/search"
)

func testParams(dir string) config.Parameters {
	return config.Parameters{
		TemplatesFilename:  map[string]string{model.SourceGoogle: "{AVAILABLE_CATEGORIES}_{AVAILABLE_REGIONS}"},
		TrustedDomains:     []string{"rbc.ru"},
		OutputDirProcessed: dir,
	}
}

var testMeta = map[string]string{"AVAILABLE_CATEGORIES": "Бизнес", "AVAILABLE_REGIONS": "Москва"}

// TestRunStampsAndPersists verifies source, metadata, approval, dedup and the output file.
func TestRunStampsAndPersists(t *testing.T) {
	dir := t.TempDir()
	c := Func(func(context.Context, []model.SubQuery, config.Parameters, map[string]string) ([]model.Record, error) {
		return []model.Record{
			{URL: "https://realty.RBC.ru/1"},
			{URL: "https://example.com/2"},
			{URL: "https://realty.RBC.ru/1"},
		}, nil
	})

	recs, err := Run(context.Background(), model.SourceGoogle, c, nil, testParams(dir), testMeta, model.SaveTo{JSON: true, Excel: true})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Approved)
	assert.False(t, recs[1].Approved)
	assert.Equal(t, model.SourceGoogle, recs[1].Source)
	assert.Equal(t, testMeta, recs[0].Metadata)

	path := filepath.Join(dir, "Google_Бизнес_Москва.json")
	saved, err := filestore.Load(path)
	require.NoError(t, err)
	assert.Equal(t, recs, saved)
	assert.True(t, filestore.Exists(filepath.Join(dir, "Google_Бизнес_Москва.xlsx")))
}

// TestRunCollectErrorPersistsNothing verifies a failed source leaves no file behind.
func TestRunCollectErrorPersistsNothing(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("captcha")
	c := Func(func(context.Context, []model.SubQuery, config.Parameters, map[string]string) ([]model.Record, error) {
		return nil, boom
	})

	_, err := Run(context.Background(), model.SourceGoogle, c, nil, testParams(dir), testMeta, model.SaveTo{JSON: true})
	var se *SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.SourceGoogle, se.Source)
	assert.ErrorIs(t, err, boom)
	assert.False(t, filestore.Exists(filepath.Join(dir, "Google_Бизнес_Москва.json")))
}

type fakeSearcher struct {
	requests []*search.Request
}

func (f *fakeSearcher) Search(_ context.Context, req *search.Request) (*search.Response, error) {
	f.requests = append(f.requests, req)
	return &search.Response{Results: []search.Result{
		{URL: "https://a.example/" + req.Query, Title: "A", RawContent: "raw"},
		{URL: ""},
	}}, nil
}

// TestSearchConnector verifies one search per sub-query with its result limit.
func TestSearchConnector(t *testing.T) {
	s := &fakeSearcher{}
	c := &SearchConnector{Name: model.SourceTavily, Searcher: s, Topic: "news"}
	queries := []model.SubQuery{{Query: "q1", ResultLimit: 20}, {Query: "q2", ResultLimit: 10}}

	recs, err := c.Collect(context.Background(), queries, config.Parameters{}, map[string]string{config.DimDateFrom: "2025-09-01"})
	require.NoError(t, err)
	require.Len(t, s.requests, 2)
	assert.Equal(t, 20, s.requests[0].MaxResults)
	assert.Equal(t, "2025-09-01", s.requests[1].DateFrom)
	require.Len(t, recs, 2)
	assert.Equal(t, model.Record{URL: "https://a.example/q1", Title: "A", RawData: "raw"}, recs[0])
}
