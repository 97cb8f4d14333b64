// Package archive 将输出文件打包为大小受限的 zip 归档。
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/logger"
)

const mb = 1024 * 1024

// 本包生成的归档文件名
var archiveName = regexp.MustCompile(`^archive_\d{3,}\.zip$`)

type file struct {
	path string
	size int64
}

// CreateArchives 收集 dir 下指定扩展名的文件，按大小从大到小装箱，
// 每个归档不超过 maxSizeMB；超过上限的单个文件被跳过。返回生成的归档路径
func CreateArchives(dir string, extensions []string, maxSizeMB float64) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("directory %s does not exist", dir)
	}
	exts := normalize(extensions)
	if len(exts) == 0 {
		return nil, errors.New("no file extensions given")
	}

	files, err := collect(dir, exts)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Log.Warnf("在 %s 中没有找到扩展名为 %v 的文件", dir, exts)
		return nil, nil
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].size > files[j].size })
	logger.Log.Infof("找到 %d 个待归档文件", len(files))

	maxBytes := int64(maxSizeMB * mb)
	var (
		created []string
		batch   []file
		size    int64
	)
	flush := func() error {
		path := filepath.Join(dir, fmt.Sprintf("archive_%03d.zip", len(created)+1))
		if err := writeZip(path, batch); err != nil {
			return err
		}
		created = append(created, path)
		batch, size = nil, 0
		return nil
	}

	for _, f := range files {
		if f.size > maxBytes {
			logger.Log.Warnf("跳过 %s: 文件过大 (%.2f MB)", filepath.Base(f.path), float64(f.size)/mb)
			continue
		}
		if size+f.size > maxBytes && len(batch) > 0 {
			if err := flush(); err != nil {
				return created, err
			}
		}
		batch = append(batch, f)
		size += f.size
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return created, err
		}
	}
	logger.Log.Infof("归档完成，共生成 %d 个归档", len(created))
	return created, nil
}

func normalize(extensions []string) []string {
	var out []string
	for _, ext := range extensions {
		ext = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(ext), ".", ""))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func collect(dir string, exts []string) ([]file, error) {
	var files []file
	for _, ext := range exts {
		matches, err := filepath.Glob(filepath.Join(dir, "*."+ext))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if archiveName.MatchString(filepath.Base(m)) {
				continue
			}
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files = append(files, file{path: m, size: info.Size()})
		}
	}
	return files, nil
}

func writeZip(path string, files []file) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	zw := zip.NewWriter(out)
	for _, f := range files {
		if err := addFile(zw, f.path); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f.path))
	}
	logger.Log.Infof("已创建归档 %s: %d 个文件 (%s)", filepath.Base(path), len(files), preview(names))
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func preview(names []string) string {
	if len(names) > 3 {
		return strings.Join(names[:3], ", ") + "..."
	}
	return strings.Join(names, ", ")
}
