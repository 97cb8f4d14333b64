package model

// 数据源名称
const (
	SourceGoogle   = "Google"
	SourceYandex   = "Yandex"
	SourceSearXNG  = "SearXNG"
	SourceTavily   = "Tavily"
	SourceTelegram = "Telegram"
)

// 阶段文件前缀
const (
	StageRaw            = "RAW"
	StagePostProcessing = "POST_PROCESSING"
)

// SubQuery 发送给单个数据源的一条子查询
type SubQuery struct {
	Query       string `json:"query"`
	ResultLimit int    `json:"result_limit"`
}

// Record 采集到的一条新闻记录
type Record struct {
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata"`
	URL      string            `json:"url"`
	Title    string            `json:"title"`
	RawData  string            `json:"raw_data"`
	Approved bool              `json:"approved"`
}

// SaveTo 输出格式开关
type SaveTo struct {
	Excel bool `yaml:"to_excel" json:"to_excel"`
	JSON  bool `yaml:"to_json" json:"to_json"`
}

// Extensions 返回启用的文件扩展名，json 在前
func (s SaveTo) Extensions() []string {
	var exts []string
	if s.JSON {
		exts = append(exts, "json")
	}
	if s.Excel {
		exts = append(exts, "xlsx")
	}
	return exts
}

// CloneMetadata 复制元数据，避免记录之间共享同一个 map
func CloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
