// Package label 解析图像分类模型的标签文件。
//
// 支持的格式按固定优先级依次尝试，每种格式对应一个确定的解析函数；
// 都不匹配时返回带描述的错误（启动即失败），不做尽力猜测。
package label

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rushteam/inferkit/pkg/conv"
)

// Format 标签文件格式
type Format string

const (
	FormatList       Format = "list"         // ["a", "b"]
	FormatWrapped    Format = "wrapped"      // {"classes"|"labels"|"class_names": [...]}
	FormatIdxToClass Format = "idx_to_class" // {"idx_to_class": {"0": "a"}}
	FormatClassToIdx Format = "class_to_idx" // {"class_to_idx": {"a": 0}}
	FormatIndexMap   Format = "index_map"    // {"0": "a", "1": "b"}
	FormatLabelMap   Format = "label_map"    // {"a": 0, "b": 1}
)

// wrappedKeys 包装列表的键，按优先级排列
var wrappedKeys = []string{"classes", "labels", "class_names"}

type parser struct {
	format Format
	parse  func(raw any) ([]string, bool, error)
}

// parsers 按优先级排列
var parsers = []parser{
	{FormatList, parseList},
	{FormatWrapped, parseWrapped},
	{FormatIdxToClass, parseIdxToClass},
	{FormatClassToIdx, parseClassToIdx},
	{FormatIndexMap, parseIndexMap},
	{FormatLabelMap, parseLabelMap},
}

// Parse 解析标签文件内容，返回按类别索引排列的标签以及识别出的格式。
func Parse(data []byte) ([]string, Format, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, "", fmt.Errorf("labels: invalid JSON: %w", err)
	}
	for _, p := range parsers {
		labels, matched, err := p.parse(raw)
		if !matched {
			continue
		}
		if err != nil {
			return nil, p.format, fmt.Errorf("labels (%s): %w", p.format, err)
		}
		if len(labels) == 0 {
			return nil, p.format, fmt.Errorf("labels (%s): no labels found", p.format)
		}
		return labels, p.format, nil
	}
	return nil, "", fmt.Errorf("labels: unsupported format %T; expected a list, {classes|labels|class_names: [...]}, idx_to_class, class_to_idx, index->label or label->index map", raw)
}

// ParseFormat 按指定格式解析，不做格式探测。
func ParseFormat(data []byte, format Format) ([]string, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("labels: invalid JSON: %w", err)
	}
	for _, p := range parsers {
		if p.format != format {
			continue
		}
		labels, matched, err := p.parse(raw)
		if !matched {
			return nil, fmt.Errorf("labels: content does not match format %s", format)
		}
		return labels, err
	}
	return nil, fmt.Errorf("labels: unknown format %q", format)
}

func parseList(raw any) ([]string, bool, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, false, nil
	}
	labels := make([]string, len(arr))
	for i, v := range arr {
		s, ok := conv.ToString(v)
		if !ok {
			return nil, true, fmt.Errorf("entry %d is not a scalar: %T", i, v)
		}
		labels[i] = s
	}
	return labels, true, nil
}

func parseWrapped(raw any) ([]string, bool, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	for _, key := range wrappedKeys {
		if v, ok := obj[key]; ok {
			if _, isList := v.([]any); !isList {
				return nil, true, fmt.Errorf("%q must be a list, got %T", key, v)
			}
			return parseList(v)
		}
	}
	return nil, false, nil
}

func parseIdxToClass(raw any) ([]string, bool, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	inner, ok := obj["idx_to_class"]
	if !ok {
		return nil, false, nil
	}
	m, ok := inner.(map[string]any)
	if !ok {
		return nil, true, fmt.Errorf("idx_to_class must be an object, got %T", inner)
	}
	labels, err := fromIndexKeyed(m)
	return labels, true, err
}

func parseClassToIdx(raw any) ([]string, bool, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	inner, ok := obj["class_to_idx"]
	if !ok {
		return nil, false, nil
	}
	m, ok := inner.(map[string]any)
	if !ok {
		return nil, true, fmt.Errorf("class_to_idx must be an object, got %T", inner)
	}
	labels, err := fromLabelKeyed(m)
	return labels, true, err
}

func parseIndexMap(raw any) ([]string, bool, error) {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, false, nil
	}
	for k := range obj {
		if !isDigits(k) {
			return nil, false, nil
		}
	}
	labels, err := fromIndexKeyed(obj)
	return labels, true, err
}

func parseLabelMap(raw any) ([]string, bool, error) {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, false, nil
	}
	for _, v := range obj {
		f, ok := conv.ToFloat64(v)
		if !ok || f != float64(int(f)) {
			return nil, false, nil
		}
	}
	labels, err := fromLabelKeyed(obj)
	return labels, true, err
}

// fromIndexKeyed 把 {"0": "a", "1": "b"} 转为按索引排序的列表，索引必须连续且从 0 开始。
func fromIndexKeyed(m map[string]any) ([]string, error) {
	byIdx := make(map[int]string, len(m))
	for k, v := range m {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("key %q is not an index", k)
		}
		s, ok := conv.ToString(v)
		if !ok {
			return nil, fmt.Errorf("label for index %d is not a scalar: %T", idx, v)
		}
		byIdx[idx] = s
	}
	return dense(byIdx)
}

// fromLabelKeyed 把 {"a": 0, "b": 1} 转为按索引排序的列表。
func fromLabelKeyed(m map[string]any) ([]string, error) {
	byIdx := make(map[int]string, len(m))
	for k, v := range m {
		idx, ok := conv.ToInt(v)
		if !ok {
			return nil, fmt.Errorf("index for label %q is not a number: %T", k, v)
		}
		if prev, dup := byIdx[idx]; dup {
			return nil, fmt.Errorf("labels %q and %q share index %d", prev, k, idx)
		}
		byIdx[idx] = k
	}
	return dense(byIdx)
}

func dense(byIdx map[int]string) ([]string, error) {
	idxs := make([]int, 0, len(byIdx))
	for i := range byIdx {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	labels := make([]string, len(idxs))
	for pos, i := range idxs {
		if i != pos {
			return nil, fmt.Errorf("indices must be contiguous from 0, missing %d", pos)
		}
		labels[pos] = byIdx[i]
	}
	return labels, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
