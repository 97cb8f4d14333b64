// Package tpl 实现 Python str.format 风格的命名占位符模板：
// 静态提取占位符名称，并在所有名称都已绑定时进行格式化。
package tpl

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/slongfield/pyfmt"
)

// MissingBindingError 模板引用了未绑定的名称
type MissingBindingError struct {
	Name     string
	Template string
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("missing binding %q for template %q", e.Name, e.Template)
}

var (
	errSingleClose = errors.New("single '}' encountered in format string")
	errSingleOpen  = errors.New("single '{' encountered in format string")
)

// Names 按首次出现顺序返回单个模板中的命名占位符。
// 位置参数（{} 与 {0}）被忽略，格式说明与属性访问只保留根名称。
func Names(tmpl string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)

	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
				continue
			}
			return nil, fmt.Errorf("template %q: %w", tmpl, errSingleClose)
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				i++
				continue
			}
			end, err := closingBrace(tmpl, i)
			if err != nil {
				return nil, fmt.Errorf("template %q: %w", tmpl, err)
			}
			name := rootName(tmpl[i+1 : end])
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			i = end
		}
	}
	return names, nil
}

// Placeholders 返回一组模板中全部命名占位符的并集（已排序）
func Placeholders(tmpls map[string]string) ([]string, error) {
	set := make(map[string]struct{})
	for _, t := range tmpls {
		names, err := Names(t)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Format 用绑定值替换模板中的命名占位符
func Format(tmpl string, bindings map[string]string) (string, error) {
	names, err := Names(tmpl)
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if _, ok := bindings[n]; !ok {
			return "", &MissingBindingError{Name: n, Template: tmpl}
		}
	}
	if bindings == nil {
		bindings = map[string]string{}
	}
	out, err := pyfmt.Fmt(tmpl, bindings)
	if err != nil {
		return "", fmt.Errorf("format template %q: %w", tmpl, err)
	}
	return out, nil
}

// closingBrace 找到与 open 位置的 '{' 匹配的 '}'，允许格式说明中嵌套一层
func closingBrace(s string, open int) (int, error) {
	depth := 0
	for j := open + 1; j < len(s); j++ {
		switch s[j] {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return j, nil
			}
			depth--
		}
	}
	return 0, errSingleOpen
}

func rootName(field string) string {
	if k := strings.IndexAny(field, "!:"); k >= 0 {
		field = field[:k]
	}
	if k := strings.IndexAny(field, ".["); k >= 0 {
		field = field[:k]
	}
	if field == "" || isDigits(field) {
		return ""
	}
	return field
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
