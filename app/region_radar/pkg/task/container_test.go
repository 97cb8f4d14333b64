package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/connector"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/filestore"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/postprocess"
)

func phaseParams(dir string) config.Parameters {
	return config.Parameters{
		TemplatesFilenameBase: "{AVAILABLE_CATEGORIES}_{AVAILABLE_REGIONS}",
		TemplatesFilename: map[string]string{
			model.SourceGoogle:   "{AVAILABLE_CATEGORIES}_{AVAILABLE_REGIONS}",
			model.SourceTavily:   "{AVAILABLE_CATEGORIES}_{AVAILABLE_REGIONS}",
			model.SourceTelegram: "{AVAILABLE_CATEGORIES}_BASE",
		},
		OutputDirProcessed:      filepath.Join(dir, "processed"),
		OutputDirRaw:            filepath.Join(dir, "raw"),
		OutputDirPostProcessing: filepath.Join(dir, "post"),
	}
}

var phaseMeta = map[string]string{"AVAILABLE_CATEGORIES": "Бизнес", "AVAILABLE_REGIONS": "Москва"}

func newTestContainer(dir string, steps ...postprocess.Step) *Container {
	toParse := map[string][]model.SubQuery{
		model.SourceGoogle: {{Query: "g", ResultLimit: 10}},
		model.SourceTavily: {{Query: "t", ResultLimit: 10}},
	}
	return New("MacroRegion", []string{model.SourceGoogle, model.SourceTavily}, toParse, phaseMeta,
		phaseParams(dir), model.SaveTo{JSON: true}, steps)
}

type countingConnector struct {
	calls   atomic.Int32
	records []model.Record
	err     error
}

func (c *countingConnector) Collect(context.Context, []model.SubQuery, config.Parameters, map[string]string) ([]model.Record, error) {
	c.calls.Add(1)
	return c.records, c.err
}

type mapFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if text, ok := f.pages[url]; ok {
		return text, nil
	}
	return "", errors.New("timeout")
}

// TestContentHash verifies the hash ignores map insertion order but not sub-query order.
func TestContentHash(t *testing.T) {
	params := phaseParams(t.TempDir())
	q := []model.SubQuery{{Query: "a", ResultLimit: 10}, {Query: "b", ResultLimit: 20}}

	m1 := map[string]string{}
	m1["a"] = "1"
	m1["b"] = "2"
	m2 := map[string]string{}
	m2["b"] = "2"
	m2["a"] = "1"

	c1 := New("x", nil, map[string][]model.SubQuery{"Google": q}, m1, params, model.SaveTo{}, nil)
	c2 := New("y", nil, map[string][]model.SubQuery{"Google": q}, m2, params, model.SaveTo{}, nil)
	assert.Equal(t, c1.Hash(), c2.Hash())
	assert.True(t, c1.Equal(c2))
	assert.Len(t, c1.Hash(), 32)

	reversed := []model.SubQuery{q[1], q[0]}
	c3 := New("x", nil, map[string][]model.SubQuery{"Google": reversed}, m1, params, model.SaveTo{}, nil)
	assert.NotEqual(t, c1.Hash(), c3.Hash())
	assert.False(t, c1.Equal(c3))
}

// TestFileNames verifies source and stage file paths.
func TestFileNames(t *testing.T) {
	dir := t.TempDir()
	c := newTestContainer(dir)

	p, err := c.SourceFile(model.SourceGoogle, "json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "processed", "Google_Бизнес_Москва.json"), p)

	p, err = c.StageFile(model.StageRaw)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "raw", "RAW_Бизнес_Москва.json"), p)

	p, err = c.StageFile(model.StagePostProcessing)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "post", "POST_PROCESSING_Бизнес_Москва.json"), p)

	_, err = c.SourceFile("Bing", "json")
	assert.Error(t, err)
}

// TestFetchProcessedIsIdempotent verifies existing outputs skip connectors and failures are isolated.
func TestFetchProcessedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	google := &countingConnector{err: errors.New("captcha")}
	tavily := &countingConnector{records: []model.Record{{URL: "https://a", RawData: "x"}}}
	reg := connector.Registry{model.SourceGoogle: google, model.SourceTavily: tavily}

	c := newTestContainer(dir)
	res := c.FetchProcessed(context.Background(), reg)
	assert.Equal(t, PhaseFetch, res.Phase)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Records)
	var serr *connector.SourceError
	require.True(t, errors.As(res.Err, &serr))
	assert.Equal(t, model.SourceGoogle, serr.Source)
	assert.Equal(t, ProcessedFetched, c.State())

	google.err = nil
	google.records = []model.Record{{URL: "https://g"}}
	res = newTestContainer(dir).FetchProcessed(context.Background(), reg)
	assert.NoError(t, res.Err)
	assert.Equal(t, int32(2), google.calls.Load())
	assert.Equal(t, int32(1), tavily.calls.Load())

	res = newTestContainer(dir).FetchProcessed(context.Background(), reg)
	assert.True(t, res.Skipped)
	assert.Equal(t, int32(2), google.calls.Load())
	assert.Equal(t, int32(1), tavily.calls.Load())
}

// TestFetchProcessedUnknownSource verifies a source without connector is skipped.
func TestFetchProcessedUnknownSource(t *testing.T) {
	res := newTestContainer(t.TempDir()).FetchProcessed(context.Background(), connector.Registry{})
	assert.NoError(t, res.Err)
	assert.True(t, res.Skipped)
}

// TestAssembleRaw verifies merge, dedup, metadata fix, page filling and idempotency.
func TestAssembleRaw(t *testing.T) {
	dir := t.TempDir()
	reg := connector.Registry{
		model.SourceGoogle: &countingConnector{records: []model.Record{
			{URL: "https://a", Title: "google a"},
			{URL: "https://b", RawData: "ready"},
		}},
		model.SourceTavily: &countingConnector{records: []model.Record{
			{URL: "https://a", Title: "tavily a"},
			{URL: "https://c"},
		}},
	}
	c := newTestContainer(dir)
	require.NoError(t, c.FetchProcessed(context.Background(), reg).Err)

	fetcher := &mapFetcher{pages: map[string]string{"https://a": "page a"}}
	res := c.AssembleRaw(context.Background(), fetcher, FetchOptions{Workers: 2, Timeout: time.Second})
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, RawAssembled, c.State())

	rawPath, _ := c.StageFile(model.StageRaw)
	raw, err := filestore.ReadJSON(rawPath)
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.Equal(t, "https://b", raw[0].URL)
	assert.Equal(t, "ready", raw[0].RawData)
	assert.Equal(t, "google a", raw[1].Title)
	assert.Equal(t, "page a", raw[1].RawData)
	assert.Equal(t, "https://c", raw[2].URL)
	assert.Equal(t, "", raw[2].RawData)
	for _, rec := range raw {
		assert.Equal(t, phaseMeta, rec.Metadata)
	}
	assert.Len(t, fetcher.calls, 2)

	res = newTestContainer(dir).AssembleRaw(context.Background(), fetcher, FetchOptions{Workers: 2})
	assert.True(t, res.Skipped)
	assert.Len(t, fetcher.calls, 2)
}

// TestAssembleRawSharedChannelFile verifies records from a file shared across regions take the task metadata.
func TestAssembleRawSharedChannelFile(t *testing.T) {
	dir := t.TempDir()
	params := phaseParams(dir)
	shared := filepath.Join(params.OutputDirProcessed, "Telegram_Бизнес_BASE.json")
	require.NoError(t, filestore.WriteJSON(shared, []model.Record{{
		URL:      "https://t.me/s/domclick",
		RawData:  "пост",
		Metadata: map[string]string{"AVAILABLE_CATEGORIES": "Бизнес", "AVAILABLE_REGIONS": "Казань", "EXTRA": "1"},
	}}))

	c := New("x", nil, map[string][]model.SubQuery{model.SourceTelegram: nil}, phaseMeta, params, model.SaveTo{JSON: true}, nil)
	res := c.AssembleRaw(context.Background(), nil, FetchOptions{})
	require.NoError(t, res.Err)

	rawPath, _ := c.StageFile(model.StageRaw)
	raw, err := filestore.ReadJSON(rawPath)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, map[string]string{"AVAILABLE_CATEGORIES": "Бизнес", "AVAILABLE_REGIONS": "Москва", "EXTRA": "1"}, raw[0].Metadata)
}

// TestGetDistinctData verifies the first occurrence of a (url, raw_data) pair wins.
func TestGetDistinctData(t *testing.T) {
	in := []model.Record{
		{URL: "u", RawData: "r", Title: "first"},
		{URL: "u", RawData: "other", Title: "second"},
		{URL: "u", RawData: "r", Title: "third"},
	}
	out := GetDistinctData(in)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Title)
	assert.Equal(t, "second", out[1].Title)
}

type slowFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *slowFetcher) Fetch(ctx context.Context, url string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if strings.HasSuffix(url, "/hang") {
		<-ctx.Done()
		return "", ctx.Err()
	}
	time.Sleep(5 * time.Millisecond)
	return "text " + url, nil
}

// TestFillRawDataBoundsConcurrency verifies the worker limit and per-page timeout.
func TestFillRawDataBoundsConcurrency(t *testing.T) {
	var records []model.Record
	for i := 0; i < 12; i++ {
		records = append(records, model.Record{URL: fmt.Sprintf("https://site/%d", i)})
	}
	records = append(records, model.Record{URL: "https://site/hang"})

	f := &slowFetcher{}
	out := FillRawData(context.Background(), records, f, FetchOptions{Workers: 3, Timeout: 50 * time.Millisecond})
	require.Len(t, out, 13)
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
	assert.Equal(t, "text https://site/0", out[0].RawData)
	assert.Equal(t, "", out[12].RawData)
}

// TestPostProcessBestEffort verifies failing steps are discarded and the rest still apply.
func TestPostProcessBestEffort(t *testing.T) {
	dir := t.TempDir()
	upper := postprocess.Step{Name: "upper", Apply: func(_ context.Context, recs []model.Record, _ config.Parameters) ([]model.Record, error) {
		for i := range recs {
			recs[i].Title = strings.ToUpper(recs[i].Title)
		}
		return recs, nil
	}}
	broken := postprocess.Step{Name: "broken", Apply: func(_ context.Context, recs []model.Record, _ config.Parameters) ([]model.Record, error) {
		recs[0].Title = "corrupted"
		return nil, errors.New("bad input")
	}}
	panics := postprocess.Step{Name: "panics", Apply: func(context.Context, []model.Record, config.Parameters) ([]model.Record, error) {
		panic("index out of range")
	}}
	dropSecond := postprocess.Step{Name: "drop", Apply: func(_ context.Context, recs []model.Record, _ config.Parameters) ([]model.Record, error) {
		return recs[:1], nil
	}}

	c := newTestContainer(dir, upper, broken, panics, dropSecond)
	rawPath, _ := c.StageFile(model.StageRaw)
	require.NoError(t, filestore.WriteJSON(rawPath, []model.Record{{Title: "first"}, {Title: "second"}}))

	res := c.PostProcess(context.Background())
	assert.Equal(t, 1, res.Records)
	var terr *postprocess.TransformError
	require.True(t, errors.As(res.Err, &terr))
	assert.Equal(t, "broken", terr.Step)
	assert.Contains(t, res.Err.Error(), "panics")
	assert.Equal(t, PostProcessed, c.State())

	outPath, _ := c.StageFile(model.StagePostProcessing)
	out, err := filestore.ReadJSON(outPath)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "FIRST", out[0].Title)

	res = newTestContainer(dir, upper).PostProcess(context.Background())
	assert.True(t, res.Skipped)
}

// TestPostProcessMissingRaw verifies a missing RAW file is reported without output.
func TestPostProcessMissingRaw(t *testing.T) {
	dir := t.TempDir()
	c := newTestContainer(dir)
	res := c.PostProcess(context.Background())
	assert.Error(t, res.Err)

	outPath, _ := c.StageFile(model.StagePostProcessing)
	_, err := os.Stat(outPath)
	assert.True(t, os.IsNotExist(err))
}

type ctxFetcher struct{}

func (ctxFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "page " + url, nil
}

// TestAssembleRawInterrupted verifies a cancelled assembly leaves no RAW file and a later run fills it.
func TestAssembleRawInterrupted(t *testing.T) {
	dir := t.TempDir()
	c := newTestContainer(dir)
	params := phaseParams(dir)
	processed := filepath.Join(params.OutputDirProcessed, "Google_Бизнес_Москва.json")
	require.NoError(t, filestore.WriteJSON(processed, []model.Record{{URL: "https://a"}, {URL: "https://b"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.AssembleRaw(ctx, ctxFetcher{}, FetchOptions{Workers: 2, Timeout: time.Second})
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.False(t, res.Skipped)

	rawPath, _ := c.StageFile(model.StageRaw)
	assert.False(t, filestore.Exists(rawPath))

	res = newTestContainer(dir).AssembleRaw(context.Background(), ctxFetcher{}, FetchOptions{Workers: 2, Timeout: time.Second})
	require.NoError(t, res.Err)
	assert.False(t, res.Skipped)
	raw, err := filestore.ReadJSON(rawPath)
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, "page https://a", raw[0].RawData)
	assert.Equal(t, "page https://b", raw[1].RawData)
}

// TestPostProcessInterrupted verifies a cancelled post-processing pass writes no output.
func TestPostProcessInterrupted(t *testing.T) {
	dir := t.TempDir()
	scored := postprocess.Step{Name: "scored", Apply: func(ctx context.Context, recs []model.Record, _ config.Parameters) ([]model.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return recs[:1], nil
	}}
	c := newTestContainer(dir, scored)
	rawPath, _ := c.StageFile(model.StageRaw)
	require.NoError(t, filestore.WriteJSON(rawPath, []model.Record{{Title: "first"}, {Title: "second"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.PostProcess(ctx)
	assert.True(t, errors.Is(res.Err, context.Canceled))

	outPath, _ := c.StageFile(model.StagePostProcessing)
	assert.False(t, filestore.Exists(outPath))

	res = newTestContainer(dir, scored).PostProcess(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Records)
	assert.True(t, filestore.Exists(outPath))
}
