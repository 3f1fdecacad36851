package wire

import (
	"maps"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// Builder 追加式构造一条 protobuf 消息。零值的标量字段按 proto3 规则省略。
type Builder struct {
	b []byte
}

// Bytes 返回编码结果。
func (m *Builder) Bytes() []byte {
	return m.b
}

// Int 写入 int32/int64 字段，0 省略。
func (m *Builder) Int(num protowire.Number, v int64) *Builder {
	if v == 0 {
		return m
	}
	return m.forceInt(num, v)
}

// OptionalInt 写入带显式存在性的整数字段，nil 省略。
func (m *Builder) OptionalInt(num protowire.Number, v *int64) *Builder {
	if v == nil {
		return m
	}
	return m.forceInt(num, *v)
}

func (m *Builder) forceInt(num protowire.Number, v int64) *Builder {
	m.b = protowire.AppendTag(m.b, num, protowire.VarintType)
	m.b = protowire.AppendVarint(m.b, uint64(v))
	return m
}

// Bool 写入布尔字段，false 省略。
func (m *Builder) Bool(num protowire.Number, v bool) *Builder {
	if !v {
		return m
	}
	m.b = protowire.AppendTag(m.b, num, protowire.VarintType)
	m.b = protowire.AppendVarint(m.b, protowire.EncodeBool(v))
	return m
}

// Double 写入 double 字段，0 省略。
func (m *Builder) Double(num protowire.Number, v float64) *Builder {
	if v == 0 {
		return m
	}
	m.b = protowire.AppendTag(m.b, num, protowire.Fixed64Type)
	m.b = protowire.AppendFixed64(m.b, math.Float64bits(v))
	return m
}

// String 写入字符串字段，空串省略。
func (m *Builder) String(num protowire.Number, v string) *Builder {
	if v == "" {
		return m
	}
	m.b = protowire.AppendTag(m.b, num, protowire.BytesType)
	m.b = protowire.AppendString(m.b, v)
	return m
}

// PackedInts 以 packed 形式写入 repeated int32/int64，空切片省略。
func (m *Builder) PackedInts(num protowire.Number, vs []int64) *Builder {
	if len(vs) == 0 {
		return m
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	m.b = protowire.AppendTag(m.b, num, protowire.BytesType)
	m.b = protowire.AppendBytes(m.b, packed)
	return m
}

// Message 写入嵌套消息；repeated 消息字段逐条调用即可。
func (m *Builder) Message(num protowire.Number, sub []byte) *Builder {
	m.b = protowire.AppendTag(m.b, num, protowire.BytesType)
	m.b = protowire.AppendBytes(m.b, sub)
	return m
}

// OptionalDouble 写入带显式存在性的 double 字段，nil 省略。
func (m *Builder) OptionalDouble(num protowire.Number, v *float64) *Builder {
	if v == nil {
		return m
	}
	m.b = protowire.AppendTag(m.b, num, protowire.Fixed64Type)
	m.b = protowire.AppendFixed64(m.b, math.Float64bits(*v))
	return m
}

// OptionalString 写入带显式存在性的字符串字段，nil 省略。
func (m *Builder) OptionalString(num protowire.Number, v *string) *Builder {
	if v == nil {
		return m
	}
	m.b = protowire.AppendTag(m.b, num, protowire.BytesType)
	m.b = protowire.AppendString(m.b, *v)
	return m
}

// IntDoubleMap 写入 map<int32, double>，按键升序输出。
func (m *Builder) IntDoubleMap(num protowire.Number, values map[int64]float64) *Builder {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		var entry Builder
		entry.Int(1, k).Double(2, values[k])
		m.Message(num, entry.Bytes())
	}
	return m
}

// IntIntMap 写入 map<int32, int32>，按键升序输出。
func (m *Builder) IntIntMap(num protowire.Number, values map[int64]int64) *Builder {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		var entry Builder
		entry.Int(1, k).Int(2, values[k])
		m.Message(num, entry.Bytes())
	}
	return m
}
