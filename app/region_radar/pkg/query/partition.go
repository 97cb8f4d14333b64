// Package query 将分类下的子类短语打包成满足数据源长度限制的子查询。
package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/model"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/tpl"
)

// 模板中由打包过程填充的占位符
const (
	SubcategoriesKey = "SUBCATEGORIES"
	ChannelKey       = "CHANNEL_NAME"
	PhraseSeparator  = " OR "
)

// Mode 查询长度的度量方式
type Mode int

const (
	Words Mode = iota
	Chars
)

func (m Mode) String() string {
	if m == Chars {
		return "chars"
	}
	return "words"
}

// Rule 数据源的长度限制
type Rule struct {
	Mode Mode
	Max  int
}

var rules = map[string]Rule{
	model.SourceGoogle:  {Mode: Words, Max: 32},
	model.SourceYandex:  {Mode: Words, Max: 32},
	model.SourceSearXNG: {Mode: Words, Max: 32},
	model.SourceTavily:  {Mode: Chars, Max: 400},
}

// RuleFor 返回数据源固定的度量方式
func RuleFor(source string) (Rule, bool) {
	r, ok := rules[source]
	return r, ok
}

// Measure 按规则计算长度；词数按单个空格切分计数
func (r Rule) Measure(s string) int {
	if r.Mode == Chars {
		return utf8.RuneCountInString(s)
	}
	return len(strings.Split(s, " "))
}

// Fits 判断格式化后的查询是否在限制内
func (r Rule) Fits(s string) bool {
	return r.Measure(s) <= r.Max
}

// group 一条子查询及其包含的短语
type group struct {
	phrases []string
	query   string
	limit   int
}

// Partition 按到达顺序贪心打包短语，每条子查询的结果数为 base × 短语数。
// 单个短语本身超限时仍单独成为一条子查询。
func Partition(tmpl string, bindings map[string]string, phrases []string, rule Rule, base int) ([]model.SubQuery, error) {
	groups, err := pack(tmpl, bindings, phrases, rule, base)
	if err != nil {
		return nil, err
	}
	out := make([]model.SubQuery, 0, len(groups))
	for _, g := range groups {
		out = append(out, model.SubQuery{Query: g.query, ResultLimit: g.limit})
	}
	return out, nil
}

func pack(tmpl string, bindings map[string]string, phrases []string, rule Rule, base int) ([]group, error) {
	b := make(map[string]string, len(bindings)+1)
	for k, v := range bindings {
		b[k] = v
	}
	render := func(set []string) (string, error) {
		b[SubcategoriesKey] = strings.Join(set, PhraseSeparator)
		return tpl.Format(tmpl, b)
	}

	var out []group
	flush := func(set []string, limit int) error {
		// 首个短语即超限时，之前的集合为空，不产生子查询
		if len(set) == 0 {
			return nil
		}
		q, err := render(set)
		if err != nil {
			return err
		}
		out = append(out, group{phrases: set, query: q, limit: limit})
		return nil
	}

	var accepted []string
	for i, phrase := range phrases {
		last := i == len(phrases)-1
		candidate := append(append([]string(nil), accepted...), phrase)

		q, err := render(candidate)
		if err != nil {
			return nil, err
		}
		if rule.Fits(q) {
			accepted = candidate
			if last {
				if err := flush(accepted, base*len(accepted)); err != nil {
					return nil, err
				}
			}
			continue
		}

		if err := flush(accepted, base*len(accepted)); err != nil {
			return nil, err
		}
		accepted = []string{phrase}
		if last {
			if err := flush(accepted, base); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Channels 为每个频道生成一条子查询，结果数固定为 limit
func Channels(tmpl string, channels []string, limit int) ([]model.SubQuery, error) {
	out := make([]model.SubQuery, 0, len(channels))
	for _, ch := range channels {
		q, err := tpl.Format(tmpl, map[string]string{ChannelKey: ch})
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch, err)
		}
		out = append(out, model.SubQuery{Query: q, ResultLimit: limit})
	}
	return out, nil
}
