package schema

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type 是 schema 节点的类型名。
type Type string

const (
	TypeInt     Type = "int"
	TypeLong    Type = "long"
	TypeUint    Type = "uint"
	TypeFloat   Type = "float"
	TypeDouble  Type = "double"
	TypeBool    Type = "bool"
	TypeString  Type = "string"
	TypeEnum    Type = "enum"
	TypeVector2 Type = "vector2"
	TypeVector3 Type = "vector3"
	TypeVector4 Type = "vector4"
	TypeList    Type = "list"
	TypeDict    Type = "dict"
	TypeObject  Type = "object"
)

// Node 是解析后的 schema 节点。
type Node struct {
	Type Type
	// Double 仅对 float 与 vector 生效，表示按 float64 读取。
	Double bool

	Key   *Node // dict
	Value *Node // dict
	Item  *Node // list

	Attributes []Attribute // object，保持声明顺序
	optional   int

	Enum map[int64]string // enum: 数值 -> 名字
}

// Attribute 是对象的一个字段。
type Attribute struct {
	Name     string
	Optional bool
	Node     *Node
}

// ErrInvalidSchema 表示 schema 文本本身不合法。
var ErrInvalidSchema = errors.New("invalid schema")

// Schema 是可复用的解码器，解析一次后可并发使用。
type Schema struct {
	root *Node
}

// Root 返回根节点。
func (s *Schema) Root() *Node {
	return s.root
}

// Parse 解析 YAML 格式的 schema。
func Parse(data []byte) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidSchema)
	}
	root, err := parseNode(doc.Content[0], "$")
	if err != nil {
		return nil, err
	}
	return &Schema{root: root}, nil
}

func parseNode(y *yaml.Node, path string) (*Node, error) {
	if y.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: expected mapping", ErrInvalidSchema, path)
	}
	fields := mappingFields(y)

	typeNode, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing type", ErrInvalidSchema, path)
	}
	n := &Node{Type: Type(strings.ToLower(typeNode.Value))}
	if p, ok := fields["precision"]; ok {
		n.Double = p.Value == "double"
	}

	var err error
	switch n.Type {
	case TypeInt, TypeLong, TypeUint, TypeFloat, TypeDouble, TypeBool, TypeString,
		TypeVector2, TypeVector3, TypeVector4:
	case TypeEnum:
		n.Enum, err = parseEnum(fields["values"], path)
	case TypeList:
		n.Item, err = parseChild(fields, "itemTypes", path)
	case TypeDict:
		if n.Key, err = parseChild(fields, "keyTypes", path); err != nil {
			return nil, err
		}
		n.Value, err = parseChild(fields, "valueTypes", path)
	case TypeObject:
		err = parseAttributes(n, fields["attributes"], path)
	default:
		return nil, fmt.Errorf("%w: %s: unknown type %q", ErrInvalidSchema, path, typeNode.Value)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func parseChild(fields map[string]*yaml.Node, key, path string) (*Node, error) {
	child, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing %s", ErrInvalidSchema, path, key)
	}
	return parseNode(child, path+"."+key)
}

func parseAttributes(n *Node, attrs *yaml.Node, path string) error {
	if attrs == nil {
		return nil
	}
	if attrs.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: %s.attributes: expected mapping", ErrInvalidSchema, path)
	}
	for i := 0; i+1 < len(attrs.Content); i += 2 {
		name := attrs.Content[i].Value
		child, err := parseNode(attrs.Content[i+1], path+"."+name)
		if err != nil {
			return err
		}
		optional := false
		if opt, ok := mappingFields(attrs.Content[i+1])["isOptional"]; ok {
			var b bool
			if err := opt.Decode(&b); err != nil {
				return fmt.Errorf("%w: %s.%s.isOptional: %v", ErrInvalidSchema, path, name, err)
			}
			optional = b
		}
		if optional {
			n.optional++
		}
		n.Attributes = append(n.Attributes, Attribute{Name: name, Optional: optional, Node: child})
	}
	return nil
}

func parseEnum(values *yaml.Node, path string) (map[int64]string, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: %s: enum without values", ErrInvalidSchema, path)
	}
	var named map[string]int64
	if err := values.Decode(&named); err != nil {
		return nil, fmt.Errorf("%w: %s.values: %v", ErrInvalidSchema, path, err)
	}
	out := make(map[int64]string, len(named))
	for name, v := range named {
		out[v] = name
	}
	return out, nil
}

func mappingFields(y *yaml.Node) map[string]*yaml.Node {
	out := make(map[string]*yaml.Node, len(y.Content)/2)
	if y.Kind != yaml.MappingNode {
		return out
	}
	for i := 0; i+1 < len(y.Content); i += 2 {
		out[y.Content[i].Value] = y.Content[i+1]
	}
	return out
}
