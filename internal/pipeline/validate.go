package pipeline

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
)

// ValidationError 描述一条不符合预期结构的记录。
type ValidationError struct {
	Domain string
	Key    string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s record %s: %v", e.Domain, e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Keyed 是带原始键的已校验记录。
type Keyed[T any] struct {
	Key   string
	Value T
}

// ID 将记录键解析为整数 ID。
func (k Keyed[T]) ID() (int64, error) {
	id, err := strconv.ParseInt(k.Key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("record key %q is not an integer id", k.Key)
	}
	return id, nil
}

// Validate 将 raw 解码到 out（结构体指针）。带 fsd:"required" 标签的字段必须出现；
// bool 字段接受 true/false 或 0/1。
func Validate(raw any, out any) error {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		Metadata:   &md,
		DecodeHook: boolIntHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return err
	}

	unset := make(map[string]struct{}, len(md.Unset))
	for _, name := range md.Unset {
		unset[strings.ToLower(name)] = struct{}{}
	}
	var missing []string
	for _, name := range requiredFields(reflect.TypeOf(out)) {
		if _, ok := unset[strings.ToLower(name)]; ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Collect 按键顺序校验 records 中的每一条记录，非法记录按数据域策略处理：
// fatal 立即返回 ValidationError，skip 记录日志后继续。
func Collect[T any](env *Env, domain string, records map[string]any) ([]Keyed[T], error) {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	out := make([]Keyed[T], 0, len(records))
	skipped := 0
	for _, key := range keys {
		var value T
		if err := Validate(records[key], &value); err != nil {
			if rerr := env.Reject(domain, key, err); rerr != nil {
				return nil, rerr
			}
			skipped++
			continue
		}
		out = append(out, Keyed[T]{Key: key, Value: value})
	}

	if skipped > 0 {
		env.Logger.WithFields(logrus.Fields{
			"action":  "validate",
			"domain":  domain,
			"skipped": skipped,
			"valid":   len(out),
		}).Warn("records_skipped")
	}
	return out, nil
}

// Reject 按数据域策略处理一条非法记录：fatal 返回 ValidationError，skip 记录日志后返回 nil。
func (e *Env) Reject(domain, key string, err error) error {
	if e.policyFor(domain) == config.PolicyFatal {
		return &ValidationError{Domain: domain, Key: key, Err: err}
	}
	e.Logger.WithFields(logrus.Fields{
		"action": "validate",
		"domain": domain,
		"key":    key,
	}).WithError(err).Warn("invalid_record")
	return nil
}

// compareKeys 数字键按数值排序，其它按字典序。
func compareKeys(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

func requiredFields(t reflect.Type) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	var names []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("fsd") != "required" {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" {
			name = field.Name
		}
		names = append(names, name)
	}
	return names
}

// boolIntHook 接受 0/1 形式的布尔值，其它数值视为错误。
func boolIntHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Bool {
		return data, nil
	}
	var n int64
	switch v := data.(type) {
	case bool:
		return v, nil
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("expected 0 or 1, got %s", v)
		}
		n = parsed
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("expected 0 or 1, got %v", v)
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	default:
		return data, nil
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return nil, fmt.Errorf("expected 0 or 1, got %d", n)
	}
}
