package wire

// UniversePoint 是三维坐标。
type UniversePoint struct {
	X, Y, Z float64
}

// Marshal 编码为 UniversePoint 消息。
func (p UniversePoint) Marshal() []byte {
	var m Builder
	return m.Double(1, p.X).Double(2, p.Y).Double(3, p.Z).Bytes()
}

// Category 对应 bundle.proto 中的 Category。
type Category struct {
	CategoryID     int64
	CategoryNameID int64
	IconID         *int64
	Published      bool
}

func (c Category) Marshal() []byte {
	var m Builder
	return m.Int(1, c.CategoryID).
		Int(2, c.CategoryNameID).
		OptionalInt(3, c.IconID).
		Bool(4, c.Published).
		Bytes()
}

// MarshalCategories 编码 CategoryCollection，顺序与输入一致。
func MarshalCategories(categories []Category) []byte {
	var m Builder
	for _, c := range categories {
		var entry Builder
		entry.Int(1, c.CategoryID).Message(2, c.Marshal())
		m.Message(1, entry.Bytes())
	}
	return m.Bytes()
}

// Group 对应 bundle.proto 中的 Group。
type Group struct {
	GroupID              int64
	GroupNameID          int64
	CategoryID           int64
	IconID               *int64
	Anchorable           bool
	FittableNonSingleton bool
	Anchored             bool
	Published            bool
	UseBasePrice         bool
}

func (g Group) Marshal() []byte {
	var m Builder
	return m.Int(1, g.GroupID).
		Int(2, g.GroupNameID).
		Int(3, g.CategoryID).
		OptionalInt(4, g.IconID).
		Bool(5, g.Anchorable).
		Bool(6, g.FittableNonSingleton).
		Bool(7, g.Anchored).
		Bool(8, g.Published).
		Bool(9, g.UseBasePrice).
		Bytes()
}

// MarshalGroups 编码 GroupCollection。
func MarshalGroups(groups []Group) []byte {
	var m Builder
	for _, g := range groups {
		var entry Builder
		entry.Int(1, g.GroupID).Message(2, g.Marshal())
		m.Message(1, entry.Bytes())
	}
	return m.Bytes()
}

// RegionType 对应 bundle.proto 中的 RegionType。
type RegionType int64

const (
	RegionTypeUnknown RegionType = iota
	RegionTypeHighSec
	RegionTypeLowSec
	RegionTypeNullSec
	RegionTypeWormhole
	RegionTypeVoid
	RegionTypeAbyssal
	RegionTypePochven
)

// Region 对应 bundle.proto 中的 Region。
type Region struct {
	RegionID         int64
	NameID           int64
	Center           UniversePoint
	DescriptionID    *int64
	Neighbours       []int64
	ConstellationIDs []int64
	SolarSystemIDs   []int64
	FactionID        *int64
	WormholeClassID  *int64
	Type             RegionType
}

func (r Region) Marshal() []byte {
	var m Builder
	return m.Int(1, r.RegionID).
		Int(2, r.NameID).
		Message(3, r.Center.Marshal()).
		OptionalInt(4, r.DescriptionID).
		PackedInts(5, r.Neighbours).
		PackedInts(6, r.ConstellationIDs).
		PackedInts(7, r.SolarSystemIDs).
		OptionalInt(8, r.FactionID).
		OptionalInt(9, r.WormholeClassID).
		Int(10, int64(r.Type)).
		Bytes()
}

// Constellation 对应 bundle.proto 中的 Constellation。
type Constellation struct {
	ConstellationID int64
	NameID          int64
	RegionID        int64
	Center          UniversePoint
	FactionID       *int64
	WormholeClassID *int64
	Neighbours      []int64
	SolarSystemIDs  []int64
}

func (c Constellation) Marshal() []byte {
	var m Builder
	return m.Int(1, c.ConstellationID).
		Int(2, c.NameID).
		Int(3, c.RegionID).
		Message(4, c.Center.Marshal()).
		OptionalInt(5, c.FactionID).
		OptionalInt(6, c.WormholeClassID).
		PackedInts(7, c.Neighbours).
		PackedInts(8, c.SolarSystemIDs).
		Bytes()
}

// MetaUIEntry 是一条界面文本键到消息 ID 的映射。
type MetaUIEntry struct {
	Key       string
	MessageID int64
}

// MarshalMetaUI 编码 MetaUiLocalizationCollection。
func MarshalMetaUI(entries []MetaUIEntry) []byte {
	var m Builder
	for _, e := range entries {
		var entry Builder
		entry.String(1, e.Key).Int(2, e.MessageID)
		m.Message(1, entry.Bytes())
	}
	return m.Bytes()
}

// LookupEntry 是名称/描述本地化 ID 的索引项。
type LookupEntry struct {
	ID            int64
	NameID        int64
	DescriptionID *int64
}

// MarshalLookup 编码 LocalizationLookup。
func MarshalLookup(entries []LookupEntry) []byte {
	var m Builder
	for _, e := range entries {
		var entry Builder
		entry.Int(1, e.ID).Int(2, e.NameID).OptionalInt(3, e.DescriptionID)
		m.Message(1, entry.Bytes())
	}
	return m.Bytes()
}
