package wire

// marshalEntries 编码 "repeated Entry { int32 id = 1; T data = 2; }" 形式的集合。
func marshalEntries[T any](items []T, id func(T) int64, data func(T) []byte) []byte {
	var m Builder
	for _, item := range items {
		var entry Builder
		entry.Int(1, id(item)).Message(2, data(item))
		m.Message(1, entry.Bytes())
	}
	return m.Bytes()
}

// TypeDefinition 对应 bundle.proto 中的 TypeID。
type TypeDefinition struct {
	TypeID                int64
	TypeNameID            int64
	GroupID               int64
	BasePrice             float64
	Capacity              float64
	PortionSize           int64
	Published             bool
	Radius                float64
	Volume                float64
	IsDynamicType         bool
	CertificateTemplate   *int64
	DescriptionID         *int64
	DesignerIDs           []int64
	FactionID             *int64
	GraphicID             *int64
	IconID                *int64
	IsisGroupID           *int64
	MarketGroupID         *int64
	MetaGroupID           *int64
	MetaLevel             *int64
	QuoteAuthorID         *int64
	QuoteID               *int64
	RaceID                *int64
	SoundID               *int64
	TechLevel             *int64
	VariationParentTypeID *int64
	WreckTypeID           *int64
}

func (t TypeDefinition) Marshal() []byte {
	var m Builder
	return m.Int(1, t.TypeID).
		Int(2, t.TypeNameID).
		Int(3, t.GroupID).
		Double(4, t.BasePrice).
		Double(5, t.Capacity).
		Int(6, t.PortionSize).
		Bool(7, t.Published).
		Double(8, t.Radius).
		Double(9, t.Volume).
		Bool(10, t.IsDynamicType).
		OptionalInt(11, t.CertificateTemplate).
		OptionalInt(12, t.DescriptionID).
		PackedInts(13, t.DesignerIDs).
		OptionalInt(14, t.FactionID).
		OptionalInt(15, t.GraphicID).
		OptionalInt(16, t.IconID).
		OptionalInt(17, t.IsisGroupID).
		OptionalInt(18, t.MarketGroupID).
		OptionalInt(19, t.MetaGroupID).
		OptionalInt(20, t.MetaLevel).
		OptionalInt(21, t.QuoteAuthorID).
		OptionalInt(22, t.QuoteID).
		OptionalInt(23, t.RaceID).
		OptionalInt(24, t.SoundID).
		OptionalInt(25, t.TechLevel).
		OptionalInt(26, t.VariationParentTypeID).
		OptionalInt(27, t.WreckTypeID).
		Bytes()
}

// MarshalTypes 编码 TypeCollection。
func MarshalTypes(types []TypeDefinition) []byte {
	return marshalEntries(types,
		func(t TypeDefinition) int64 { return t.TypeID },
		TypeDefinition.Marshal)
}

// DogmaAttribute 是类型的一条属性值。
type DogmaAttribute struct {
	AttributeID int64
	Value       float64
}

// DogmaEffect 是类型的一条效果。
type DogmaEffect struct {
	EffectID  int64
	IsDefault bool
}

// TypeDogma 对应 bundle.proto 中的 TypeDogma。
type TypeDogma struct {
	Attributes []DogmaAttribute
	Effects    []DogmaEffect
}

func (d TypeDogma) Marshal() []byte {
	var m Builder
	for _, a := range d.Attributes {
		var sub Builder
		sub.Int(1, a.AttributeID).Double(2, a.Value)
		m.Message(1, sub.Bytes())
	}
	for _, e := range d.Effects {
		var sub Builder
		sub.Int(1, e.EffectID).Bool(2, e.IsDefault)
		m.Message(2, sub.Bytes())
	}
	return m.Bytes()
}

// Material 是回收产物及数量。
type Material struct {
	MaterialTypeID int64
	Quantity       int64
}

// TypeMaterials 对应 bundle.proto 中的 TypeMaterial。
type TypeMaterials struct {
	Materials []Material
}

func (t TypeMaterials) Marshal() []byte {
	var m Builder
	for _, mat := range t.Materials {
		var sub Builder
		sub.Int(1, mat.MaterialTypeID).Int(2, mat.Quantity)
		m.Message(1, sub.Bytes())
	}
	return m.Bytes()
}

// MetaGroup 对应 bundle.proto 中的 MetaGroup。
type MetaGroup struct {
	MetaGroupID int64
	NameID      int64
	IconID      *int64
}

func (g MetaGroup) Marshal() []byte {
	var m Builder
	return m.Int(1, g.NameID).OptionalInt(2, g.IconID).Bytes()
}

// MarshalMetaGroups 编码 MetaGroupCollection。
func MarshalMetaGroups(groups []MetaGroup) []byte {
	return marshalEntries(groups,
		func(g MetaGroup) int64 { return g.MetaGroupID },
		MetaGroup.Marshal)
}

// MarketGroup 对应 bundle.proto 中的 MarketGroup；Types/Groups 为直接子项。
type MarketGroup struct {
	MarketGroupID int64
	NameID        int64
	DescriptionID *int64
	IconID        *int64
	ParentGroupID *int64
	HasTypes      bool
	Types         []int64
	Groups        []int64
}

func (g MarketGroup) Marshal() []byte {
	var m Builder
	return m.Int(1, g.NameID).
		OptionalInt(2, g.DescriptionID).
		OptionalInt(3, g.IconID).
		OptionalInt(4, g.ParentGroupID).
		Bool(5, g.HasTypes).
		PackedInts(6, g.Types).
		PackedInts(7, g.Groups).
		Bytes()
}

// MarshalMarketGroups 编码 MarketGroupCollection。
func MarshalMarketGroups(groups []MarketGroup) []byte {
	return marshalEntries(groups,
		func(g MarketGroup) int64 { return g.MarketGroupID },
		MarketGroup.Marshal)
}

// Faction 对应 bundle.proto 中的 Faction。
type Faction struct {
	FactionID            int64
	NameID               int64
	DescriptionID        int64
	ShortDescriptionID   *int64
	CorporationID        *int64
	IconID               int64
	MemberRaces          []int64
	UniqueName           bool
	FlatLogo             *string
	FlatLogoWithName     *string
	SolarSystemID        int64
	MilitiaCorporationID *int64
	SizeFactor           float64
}

func (f Faction) Marshal() []byte {
	var m Builder
	return m.Int(1, f.NameID).
		Int(2, f.DescriptionID).
		OptionalInt(3, f.ShortDescriptionID).
		OptionalInt(4, f.CorporationID).
		Int(5, f.IconID).
		PackedInts(6, f.MemberRaces).
		Bool(7, f.UniqueName).
		OptionalString(8, f.FlatLogo).
		OptionalString(9, f.FlatLogoWithName).
		Int(10, f.SolarSystemID).
		OptionalInt(11, f.MilitiaCorporationID).
		Double(12, f.SizeFactor).
		Bytes()
}

// MarshalFactions 编码 FactionCollection。
func MarshalFactions(factions []Faction) []byte {
	return marshalEntries(factions,
		func(f Faction) int64 { return f.FactionID },
		Faction.Marshal)
}

// CorporationExtent 对应 NpcCorporation.Extent。
type CorporationExtent int64

const (
	ExtentUnknown CorporationExtent = iota
	ExtentC
	ExtentG
	ExtentL
	ExtentN
	ExtentR
)

// CorporationSize 对应 NpcCorporation.Size。
type CorporationSize int64

const (
	SizeUnknown CorporationSize = iota
	SizeH
	SizeL
	SizeM
	SizeS
	SizeT
)

// Division 是 NPC 公司的一个部门。
type Division struct {
	DivisionID     int64
	DivisionNumber int64
	LeaderID       int64
	Size           int64
}

// NpcCorporation 对应 bundle.proto 中的 NpcCorporation。
type NpcCorporation struct {
	CorporationID              int64
	AllowedMemberRaces         []int64
	CeoID                      *int64
	CorporationTrades          map[int64]float64
	Deleted                    bool
	DescriptionID              *int64
	Divisions                  []Division
	EnemyID                    *int64
	Extent                     CorporationExtent
	FactionID                  *int64
	FriendID                   *int64
	HasPlayerPersonnelManager  bool
	IconID                     *int64
	InitialPrice               float64
	Investors                  map[int64]int64
	LPOfferTables              []int64
	MainActivityID             *int64
	MinSecurity                float64
	MinimumJoinStanding        bool
	NameID                     int64
	PublicShares               int64
	RaceID                     *int64
	SecondaryActivityID        *int64
	SendCharTerminationMessage bool
	Shares                     int64
	Size                       CorporationSize
	SizeFactor                 *float64
	SolarSystemID              *int64
	StationID                  *int64
	TaxRate                    float64
	TickerName                 string
	UniqueName                 bool
}

func (c NpcCorporation) Marshal() []byte {
	var m Builder
	m.Int(1, c.CorporationID).
		PackedInts(2, c.AllowedMemberRaces).
		OptionalInt(3, c.CeoID).
		IntDoubleMap(4, c.CorporationTrades).
		Bool(5, c.Deleted).
		OptionalInt(6, c.DescriptionID)
	for _, d := range c.Divisions {
		var sub Builder
		sub.Int(1, d.DivisionID).Int(2, d.DivisionNumber).Int(3, d.LeaderID).Int(4, d.Size)
		m.Message(7, sub.Bytes())
	}
	return m.OptionalInt(8, c.EnemyID).
		Int(9, int64(c.Extent)).
		OptionalInt(10, c.FactionID).
		OptionalInt(11, c.FriendID).
		Bool(12, c.HasPlayerPersonnelManager).
		OptionalInt(13, c.IconID).
		Double(14, c.InitialPrice).
		IntIntMap(15, c.Investors).
		PackedInts(16, c.LPOfferTables).
		OptionalInt(17, c.MainActivityID).
		Double(18, c.MinSecurity).
		Bool(19, c.MinimumJoinStanding).
		Int(20, c.NameID).
		Int(21, c.PublicShares).
		OptionalInt(22, c.RaceID).
		OptionalInt(23, c.SecondaryActivityID).
		Bool(24, c.SendCharTerminationMessage).
		Int(25, c.Shares).
		Int(26, int64(c.Size)).
		OptionalDouble(27, c.SizeFactor).
		OptionalInt(28, c.SolarSystemID).
		OptionalInt(29, c.StationID).
		Double(30, c.TaxRate).
		String(31, c.TickerName).
		Bool(32, c.UniqueName).
		Bytes()
}

// StationOperation 对应 bundle.proto 中的 StationOperation。
type StationOperation struct {
	OperationID         int64
	ActivityID          int64
	Border              float64
	Corridor            float64
	DescriptionID       *int64
	Fringe              float64
	Hub                 float64
	ManufacturingFactor float64
	OperationNameID     int64
	Ratio               float64
	ResearchFactor      float64
	Services            []int64
	StationTypes        []int64
}

func (o StationOperation) Marshal() []byte {
	var m Builder
	return m.Int(1, o.OperationID).
		Int(2, o.ActivityID).
		Double(3, o.Border).
		Double(4, o.Corridor).
		OptionalInt(5, o.DescriptionID).
		Double(6, o.Fringe).
		Double(7, o.Hub).
		Double(8, o.ManufacturingFactor).
		Int(9, o.OperationNameID).
		Double(10, o.Ratio).
		Double(11, o.ResearchFactor).
		PackedInts(12, o.Services).
		PackedInts(13, o.StationTypes).
		Bytes()
}
