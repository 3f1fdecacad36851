package schema

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ErrTrailingBytes 表示根值解码完成后仍有剩余字节。
var ErrTrailingBytes = errors.New("trailing bytes after value")

// DecodeError 记录出错位置（schema 路径 + 字节偏移）。
type DecodeError struct {
	Path   string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode 解析 schemaData 并用它解码 payload。
func Decode(schemaData, payload []byte) (any, error) {
	s, err := Parse(schemaData)
	if err != nil {
		return nil, err
	}
	return s.Decode(payload)
}

// Decode 按 schema 解码整段 payload，不允许残留字节。
func (s *Schema) Decode(payload []byte) (any, error) {
	d := &decoder{buf: payload}
	v, err := d.value(s.root, "$")
	if err != nil {
		return nil, err
	}
	if d.off != len(d.buf) {
		return nil, &DecodeError{Path: "$", Offset: d.off, Err: ErrTrailingBytes}
	}
	return v, nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) fail(path string, err error) error {
	return &DecodeError{Path: path, Offset: d.off, Err: err}
}

func (d *decoder) take(n int, path string) ([]byte, error) {
	if n < 0 || len(d.buf)-d.off < n {
		return nil, d.fail(path, io.ErrUnexpectedEOF)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u32(path string) (uint32, error) {
	b, err := d.take(4, path)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) float(double bool, path string) (float64, error) {
	if double {
		b, err := d.take(8, path)
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	}
	b, err := d.take(4, path)
	if err != nil {
		return 0, err
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
}

// count 读取长度前缀并确认剩余字节足够容纳 n 个最小元素。
func (d *decoder) count(elem *Node, path string) (int, error) {
	n, err := d.u32(path)
	if err != nil {
		return 0, err
	}
	// 零宽元素也按 1 字节计，长度前缀不能超过剩余字节数。
	if uint64(n)*uint64(max(minSize(elem), 1)) > uint64(len(d.buf)-d.off) {
		return 0, d.fail(path, fmt.Errorf("count %d exceeds remaining payload: %w", n, io.ErrUnexpectedEOF))
	}
	return int(n), nil
}

func (d *decoder) value(n *Node, path string) (any, error) {
	switch n.Type {
	case TypeInt:
		v, err := d.u32(path)
		return int64(int32(v)), err
	case TypeUint:
		v, err := d.u32(path)
		return int64(v), err
	case TypeLong:
		b, err := d.take(8, path)
		if err != nil {
			return nil, err
		}
		return int64(binary.LittleEndian.Uint64(b)), nil
	case TypeFloat:
		return d.float(n.Double, path)
	case TypeDouble:
		return d.float(true, path)
	case TypeBool:
		b, err := d.take(1, path)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, &DecodeError{Path: path, Offset: d.off - 1, Err: fmt.Errorf("invalid bool byte %d", b[0])}
		}
	case TypeString:
		size, err := d.u32(path)
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(size), path)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case TypeEnum:
		v, err := d.u32(path)
		if err != nil {
			return nil, err
		}
		raw := int64(int32(v))
		if name, ok := n.Enum[raw]; ok {
			return name, nil
		}
		return raw, nil
	case TypeVector2, TypeVector3, TypeVector4:
		return d.vector(n, path)
	case TypeList:
		return d.list(n, path)
	case TypeDict:
		return d.dict(n, path)
	case TypeObject:
		return d.object(n, path)
	default:
		return nil, d.fail(path, fmt.Errorf("unsupported type %q", n.Type))
	}
}

var vectorAxes = []string{"x", "y", "z", "w"}

func (d *decoder) vector(n *Node, path string) (any, error) {
	dims := vectorDims(n.Type)
	out := make(map[string]any, dims)
	for _, axis := range vectorAxes[:dims] {
		v, err := d.float(n.Double, path+"."+axis)
		if err != nil {
			return nil, err
		}
		out[axis] = v
	}
	return out, nil
}

func (d *decoder) list(n *Node, path string) (any, error) {
	count, err := d.count(n.Item, path)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, min(count, 1024))
	for i := 0; i < count; i++ {
		v, err := d.value(n.Item, path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *decoder) dict(n *Node, path string) (any, error) {
	count, err := d.count(n.Key, path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, min(count, 1024))
	for i := 0; i < count; i++ {
		k, err := d.value(n.Key, path+"{key}")
		if err != nil {
			return nil, err
		}
		key := fmt.Sprint(k)
		v, err := d.value(n.Value, path+"["+key+"]")
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func (d *decoder) object(n *Node, path string) (any, error) {
	var present []byte
	if n.optional > 0 {
		b, err := d.take((n.optional+7)/8, path+"{presence}")
		if err != nil {
			return nil, err
		}
		present = b
	}

	out := make(map[string]any, len(n.Attributes))
	opt := 0
	for _, attr := range n.Attributes {
		if attr.Optional {
			bit := opt
			opt++
			if present[bit/8]&(1<<(bit%8)) == 0 {
				continue
			}
		}
		v, err := d.value(attr.Node, path+"."+attr.Name)
		if err != nil {
			return nil, err
		}
		out[attr.Name] = v
	}
	return out, nil
}

func vectorDims(t Type) int {
	switch t {
	case TypeVector2:
		return 2
	case TypeVector3:
		return 3
	default:
		return 4
	}
}

// minSize 返回一个值至少占用的字节数，用于拒绝明显越界的长度前缀。
func minSize(n *Node) int {
	switch n.Type {
	case TypeBool:
		return 1
	case TypeInt, TypeUint, TypeEnum, TypeString, TypeList, TypeDict:
		return 4
	case TypeLong, TypeDouble:
		return 8
	case TypeFloat:
		if n.Double {
			return 8
		}
		return 4
	case TypeVector2, TypeVector3, TypeVector4:
		size := 4
		if n.Double {
			size = 8
		}
		return size * vectorDims(n.Type)
	case TypeObject:
		total := (n.optional + 7) / 8
		for _, a := range n.Attributes {
			if !a.Optional {
				total += minSize(a.Node)
			}
		}
		return total
	default:
		return 0
	}
}
