package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestPreviousPeriod verifies the Russian month name of the previous month,
// including the January rollover.
func TestPreviousPeriod(t *testing.T) {
	assert.Equal(t, "Август 2025", PreviousPeriod(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Декабрь 2024", PreviousPeriod(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

// TestLoadConfigMergesSections verifies that later files override sections
// of earlier ones and that defaults fill the rest.
func TestLoadConfigMergesSections(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", `
parser:
  sources: [Google, Tavily]
  month_begin: "2025-09-01"
  categories_search:
    Доступность недвижимости:
      - Доступность жилья
      - Барьеры для приобретения жилья
region:
  regions: [Москва]
  keywords:
    Москва: [москв, мск]
`)
	override := writeFile(t, dir, "local.yaml", `
parser:
  sources: [Yandex]
storage:
  output_dir_raw: /tmp/raw
`)

	cfg, err := LoadConfig(base, override)
	require.NoError(t, err)

	assert.Equal(t, DefaultName, cfg.Name)
	assert.Equal(t, []string{"Yandex"}, cfg.Parser.Sources)
	assert.Equal(t, "/tmp/raw", cfg.Storage.OutputDirRaw)
	assert.Equal(t, "output/processed", cfg.Storage.OutputDirProcessed)
	assert.Equal(t, "Август 2025", cfg.Parser.Period)
	assert.Equal(t, "2025-09-01", cfg.Parser.DateFrom)
	assert.Equal(t, []string{"Доступность недвижимости"}, cfg.Parser.Categories)
	assert.Equal(t, &model.SaveTo{JSON: true}, cfg.Parser.SaveTo)
	assert.Equal(t, 6, cfg.Fetch.Workers)
	assert.Equal(t, 80.0, cfg.Archive.MaxSizeMB)
	assert.Equal(t, "smtp.gmail.com", cfg.Mail.Host)
	assert.True(t, *cfg.Mail.SortByNumber)
}

// TestLoadConfigEnvSecrets verifies that secrets missing from files come
// from the environment.
func TestLoadConfigEnvSecrets(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "tvly-env")
	path := writeFile(t, t.TempDir(), "c.yaml", "name: Test\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tvly-env", cfg.API.Tavily.APIKey)
	assert.Equal(t, "Test", cfg.Name)
}

// TestLoadConfigErrors verifies missing files and invalid values are rejected.
func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig()
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	_, err = LoadConfig(writeFile(t, dir, "bad.yaml", "parser:\n  search_limits:\n    Google: 0\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, dir, "mode.yaml", "api:\n  telegram:\n    mode: mtproto\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, dir, "date.yaml", "parser:\n  month_begin: 01.09.2025\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, dir, "save.yaml", "parser:\n  save_to:\n    to_json: false\n    to_excel: false\n"))
	assert.ErrorContains(t, err, "save_to")
}

// TestDimensions verifies scalars become one-element lists and unset
// dimensions stay absent.
func TestDimensions(t *testing.T) {
	cfg := &Config{}
	cfg.Parser.Sources = []string{"Google"}
	cfg.Parser.Categories = []string{"Бизнес"}
	cfg.Parser.Period = "Август 2025"
	cfg.Region.Regions = []string{"Москва", "Тула"}

	dims := cfg.Dimensions()
	assert.Equal(t, []string{"Август 2025"}, dims[DimPeriod])
	assert.Equal(t, []string{"Москва", "Тула"}, dims[DimRegions])
	_, ok := dims[DimDateFrom]
	assert.False(t, ok)
}

// TestSnapshotIsolated verifies that the snapshot does not share maps or
// slices with the configuration.
func TestSnapshotIsolated(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.ApplyDefaults(time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)))
	cfg.Parser.TrustedDomains = []string{"RBC.ru"}
	keys := []string{"москв"}

	p := cfg.Snapshot([]string{"Доступность жилья"}, keys)
	keys[0] = "changed"
	cfg.Parser.TemplatesParse[model.SourceGoogle] = "changed"

	assert.Equal(t, []string{"москв"}, p.RegionKeys)
	assert.NotEqual(t, "changed", p.TemplatesParse[model.SourceGoogle])
	assert.True(t, p.Approved("https://www.rbc.ru/economics/1"))
	assert.False(t, p.Approved("https://example.com"))
	assert.Equal(t, DefaultTelegramLimit, p.SearchLimit(model.SourceTelegram))
	assert.Equal(t, DefaultSearchLimit, p.SearchLimit(model.SourceGoogle))
	assert.Equal(t, "output/raw", p.OutputDir(model.StageRaw))
	assert.Equal(t, "output/processed", p.OutputDir(model.SourceGoogle))
}
