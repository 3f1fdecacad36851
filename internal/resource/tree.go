package resource

import (
	"iter"
	"path/filepath"
	"slices"
	"strings"
)

// Record 是索引文件中的一行：标识符、远端定位串与摘要。
type Record struct {
	ResID         string
	RemoteLocator string
	Checksum      string
}

// Leaf 描述一个可下载的资源文件，构建后不可变。
type Leaf struct {
	Name          string
	LocalPath     string
	ResID         string
	RemoteLocator string
	// Checksum 为空时下载后不做校验。
	Checksum string
}

// Interior 是目录节点，只支持按名字查找子节点。
type Interior struct {
	children map[string]Node
}

// Child 返回名为 name 的子节点。
func (d *Interior) Child(name string) (Node, bool) {
	n, ok := d.children[name]
	return n, ok
}

// Names 返回排序后的子节点名字。
func (d *Interior) Names() []string {
	names := make([]string, 0, len(d.children))
	for name := range d.children {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len 返回直接子节点数量。
func (d *Interior) Len() int {
	return len(d.children)
}

// NodeKind 标记 Node 当前承载的变体。
type NodeKind uint8

const (
	KindLeaf NodeKind = iota + 1
	KindInterior
)

func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindInterior:
		return "interior"
	default:
		return "invalid"
	}
}

// Node 是叶子与目录的显式联合体，通过 Kind 判别。
type Node struct {
	kind NodeKind
	leaf *Leaf
	dir  *Interior
}

func leafNode(l *Leaf) Node         { return Node{kind: KindLeaf, leaf: l} }
func interiorNode(d *Interior) Node { return Node{kind: KindInterior, dir: d} }

// Kind 返回节点类别；零值 Node 返回 0。
func (n Node) Kind() NodeKind { return n.kind }

// Leaf 仅当节点为叶子时返回 true。
func (n Node) Leaf() (*Leaf, bool) {
	return n.leaf, n.kind == KindLeaf
}

// Interior 仅当节点为目录时返回 true。
func (n Node) Interior() (*Interior, bool) {
	return n.dir, n.kind == KindInterior
}

// Tree 是由索引构建出的只读前缀树，可被任意数量的 goroutine 并发读取。
type Tree struct {
	root      *Interior
	cacheRoot string
	leaves    int
}

// BuildReport 汇总构建过程中被覆盖或被拒绝的记录标识符。
type BuildReport struct {
	// Duplicates 中的标识符出现多次，后出现者生效。
	Duplicates []string
	// Conflicts 中的记录与已有的叶子/目录冲突，已跳过。
	Conflicts []string
	// Invalid 中的记录没有叶子段或含 . / .. 段，已跳过。
	Invalid []string
}

// BuildTree 将索引记录插入树中；每个叶子的本地路径为 cacheRoot 加上非 scheme 段。
func BuildTree(cacheRoot string, records []Record) (*Tree, BuildReport) {
	t := &Tree{
		root:      &Interior{children: make(map[string]Node)},
		cacheRoot: cacheRoot,
	}
	var report BuildReport

	for _, rec := range records {
		dirs, name := splitIdentifier(rec.ResID)
		if name == "" || !validSegments(dirs) || !validSegments([]string{name}) {
			report.Invalid = append(report.Invalid, rec.ResID)
			continue
		}

		cur := t.root
		conflict := false
		for _, seg := range dirs {
			child, ok := cur.children[seg]
			if !ok {
				next := &Interior{children: make(map[string]Node)}
				cur.children[seg] = interiorNode(next)
				cur = next
				continue
			}
			dir, isDir := child.Interior()
			if !isDir {
				conflict = true
				break
			}
			cur = dir
		}
		if conflict {
			report.Conflicts = append(report.Conflicts, rec.ResID)
			continue
		}

		if existing, ok := cur.children[name]; ok {
			if existing.Kind() == KindInterior {
				report.Conflicts = append(report.Conflicts, rec.ResID)
				continue
			}
			report.Duplicates = append(report.Duplicates, rec.ResID)
		} else {
			t.leaves++
		}

		parts := make([]string, 0, len(dirs)+2)
		parts = append(parts, cacheRoot)
		parts = append(parts, dirs...)
		parts = append(parts, name)
		cur.children[name] = leafNode(&Leaf{
			Name:          name,
			LocalPath:     filepath.Join(parts...),
			ResID:         rec.ResID,
			RemoteLocator: rec.RemoteLocator,
			Checksum:      rec.Checksum,
		})
	}

	return t, report
}

// Resolve 沿标识符逐段查找，返回终点节点；不存在时返回 false。
func (t *Tree) Resolve(id string) (Node, bool) {
	dirs, name := splitIdentifier(id)
	cur := t.root
	for _, seg := range dirs {
		child, ok := cur.children[seg]
		if !ok {
			return Node{}, false
		}
		dir, isDir := child.Interior()
		if !isDir {
			return Node{}, false
		}
		cur = dir
	}
	if name == "" {
		return interiorNode(cur), true
	}
	n, ok := cur.children[name]
	return n, ok
}

// Root 返回根目录节点。
func (t *Tree) Root() Node {
	return interiorNode(t.root)
}

// Len 返回叶子总数。
func (t *Tree) Len() int {
	return t.leaves
}

// CacheRoot 返回构建时使用的缓存根目录。
func (t *Tree) CacheRoot() string {
	return t.cacheRoot
}

// ListLeaves 惰性地递归展开 n 下的全部叶子，按名字排序输出。
func ListLeaves(n Node) iter.Seq[*Leaf] {
	return func(yield func(*Leaf) bool) {
		walkLeaves(n, yield)
	}
}

func walkLeaves(n Node, yield func(*Leaf) bool) bool {
	switch n.Kind() {
	case KindLeaf:
		return yield(n.leaf)
	case KindInterior:
		for _, name := range n.dir.Names() {
			if !walkLeaves(n.dir.children[name], yield) {
				return false
			}
		}
	}
	return true
}

// splitIdentifier 丢弃空段与含冒号的 scheme 段，最后一段作为叶子名。
// 仅由 scheme 组成的标识符（如 "res:"）返回空的叶子名。
func splitIdentifier(id string) (dirs []string, name string) {
	parts := strings.Split(id, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	if len(segs) == 0 {
		return nil, ""
	}

	last := segs[len(segs)-1]
	for _, seg := range segs[:len(segs)-1] {
		if strings.Contains(seg, ":") {
			continue
		}
		dirs = append(dirs, seg)
	}
	if strings.HasSuffix(last, ":") {
		return dirs, ""
	}
	return dirs, last
}

func validSegments(segs []string) bool {
	for _, s := range segs {
		if s == "." || s == ".." {
			return false
		}
	}
	return true
}
