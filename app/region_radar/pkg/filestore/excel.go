package filestore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
)

// Excel 单元格最多容纳的字符数
const maxCellChars = 32767

var excelHeader = []interface{}{"source", "metadata", "url", "title", "raw_data", "approved"}

// WriteExcel 将记录写入第一个工作表，metadata 列以 JSON 字符串保存
func WriteExcel(path string, records []model.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &excelHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		row := []interface{}{
			rec.Source,
			string(meta),
			truncateCell(rec.URL),
			truncateCell(rec.Title),
			truncateCell(rec.RawData),
			rec.Approved,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return writeAtomic(path, buf.Bytes())
}

// ReadExcel 读取 WriteExcel 写出的工作表
func ReadExcel(path string) ([]model.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read rows %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]model.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		// GetRows 会省略行尾的空单元格
		for len(row) < len(excelHeader) {
			row = append(row, "")
		}
		rec := model.Record{
			Source:  row[0],
			URL:     row[2],
			Title:   row[3],
			RawData: row[4],
		}
		if row[1] != "" && row[1] != "null" {
			if err := json.Unmarshal([]byte(row[1]), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata in %s: %w", path, err)
			}
		}
		rec.Approved, _ = strconv.ParseBool(row[5])
		records = append(records, rec)
	}
	return records, nil
}

func truncateCell(s string) string {
	if utf8.RuneCountInString(s) <= maxCellChars {
		return s
	}
	r := []rune(s)
	return string(r[:maxCellChars])
}
