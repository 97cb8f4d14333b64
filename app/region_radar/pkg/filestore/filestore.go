// Package filestore 负责采集结果的 JSON / Excel 读写，写入均为原子操作。
package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

// Path 按 {prefix}_{name}.{ext} 规则拼接文件路径
func Path(dir, prefix, name, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, name, ext))
}

// Exists 判断普通文件是否存在
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Save 按扩展名写入记录
func Save(path string, records []model.Record) error {
	switch filepath.Ext(path) {
	case ".json":
		return WriteJSON(path, records)
	case ".xlsx":
		return WriteExcel(path, records)
	default:
		return fmt.Errorf("unsupported output format: %s", path)
	}
}

// Load 按扩展名读取记录
func Load(path string) ([]model.Record, error) {
	switch filepath.Ext(path) {
	case ".json":
		return ReadJSON(path)
	case ".xlsx":
		return ReadExcel(path)
	default:
		return nil, fmt.Errorf("unsupported input format: %s", path)
	}
}

// WriteJSON 以 4 空格缩进、不转义非 ASCII 字符的方式写入 JSON
func WriteJSON(path string, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeAtomic(path, buf.Bytes())
}

// ReadJSON 读取记录列表，单个对象按一条记录处理
func ReadJSON(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file: %s", path)
	}
	if data[0] == '{' {
		var rec model.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return []model.Record{rec}, nil
	}
	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

// writeAtomic 先写临时文件再重命名，失败时不会留下半个文件
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
