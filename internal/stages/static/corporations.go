package static

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"zombiezen.com/go/sqlite"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/wire"
)

var extents = map[string]wire.CorporationExtent{
	"C": wire.ExtentC,
	"G": wire.ExtentG,
	"L": wire.ExtentL,
	"N": wire.ExtentN,
	"R": wire.ExtentR,
}

var sizes = map[string]wire.CorporationSize{
	"H": wire.SizeH,
	"L": wire.SizeL,
	"M": wire.SizeM,
	"S": wire.SizeS,
	"T": wire.SizeT,
}

type divisionRecord struct {
	DivisionNumber int64 `mapstructure:"divisionNumber"`
	LeaderID       int64 `mapstructure:"leaderID"`
	Size           int64 `mapstructure:"size"`
}

type npcCorporationRecord struct {
	AllowedMemberRaces         []int64                   `mapstructure:"allowedMemberRaces"`
	CeoID                      *int64                    `mapstructure:"ceoID"`
	CorporationTrades          map[string]float64        `mapstructure:"corporationTrades"`
	Deleted                    bool                      `mapstructure:"deleted" fsd:"required"`
	DescriptionID              *int64                    `mapstructure:"descriptionID"`
	Divisions                  map[string]divisionRecord `mapstructure:"divisions"`
	EnemyID                    *int64                    `mapstructure:"enemyID"`
	Extent                     string                    `mapstructure:"extent" fsd:"required"`
	FactionID                  *int64                    `mapstructure:"factionID"`
	FriendID                   *int64                    `mapstructure:"friendID"`
	HasPlayerPersonnelManager  bool                      `mapstructure:"hasPlayerPersonnelManager" fsd:"required"`
	IconID                     *int64                    `mapstructure:"iconID"`
	InitialPrice               float64                   `mapstructure:"initialPrice" fsd:"required"`
	Investors                  map[string]int64          `mapstructure:"investors"`
	LPOfferTables              []int64                   `mapstructure:"lpOfferTables"`
	MainActivityID             *int64                    `mapstructure:"mainActivityID"`
	MinSecurity                float64                   `mapstructure:"minSecurity" fsd:"required"`
	MinimumJoinStanding        bool                      `mapstructure:"minimumJoinStanding" fsd:"required"`
	NameID                     int64                     `mapstructure:"nameID" fsd:"required"`
	PublicShares               int64                     `mapstructure:"publicShares" fsd:"required"`
	RaceID                     *int64                    `mapstructure:"raceID"`
	SecondaryActivityID        *int64                    `mapstructure:"secondaryActivityID"`
	SendCharTerminationMessage bool                      `mapstructure:"sendCharTerminationMessage" fsd:"required"`
	Shares                     int64                     `mapstructure:"shares" fsd:"required"`
	Size                       string                    `mapstructure:"size" fsd:"required"`
	SizeFactor                 *float64                  `mapstructure:"sizeFactor"`
	SolarSystemID              *int64                    `mapstructure:"solarSystemID"`
	StationID                  *int64                    `mapstructure:"stationID"`
	TaxRate                    float64                   `mapstructure:"taxRate" fsd:"required"`
	TickerName                 string                    `mapstructure:"tickerName" fsd:"required"`
	UniqueName                 bool                      `mapstructure:"uniqueName" fsd:"required"`
}

// corporation 把已解码的记录转换为线上结构，枚举字母或 map 键非法时报错。
func (r npcCorporationRecord) corporation(id int64) (wire.NpcCorporation, error) {
	extent, ok := extents[r.Extent]
	if !ok {
		return wire.NpcCorporation{}, fmt.Errorf("unknown extent %q", r.Extent)
	}
	size, ok := sizes[r.Size]
	if !ok {
		return wire.NpcCorporation{}, fmt.Errorf("unknown size %q", r.Size)
	}
	trades, err := intKeys(r.CorporationTrades)
	if err != nil {
		return wire.NpcCorporation{}, fmt.Errorf("corporationTrades: %w", err)
	}
	investors, err := intKeys(r.Investors)
	if err != nil {
		return wire.NpcCorporation{}, fmt.Errorf("investors: %w", err)
	}
	divisions, err := intKeys(r.Divisions)
	if err != nil {
		return wire.NpcCorporation{}, fmt.Errorf("divisions: %w", err)
	}

	c := wire.NpcCorporation{
		CorporationID:              id,
		AllowedMemberRaces:         r.AllowedMemberRaces,
		CeoID:                      r.CeoID,
		CorporationTrades:          trades,
		Deleted:                    r.Deleted,
		DescriptionID:              r.DescriptionID,
		EnemyID:                    r.EnemyID,
		Extent:                     extent,
		FactionID:                  r.FactionID,
		FriendID:                   r.FriendID,
		HasPlayerPersonnelManager:  r.HasPlayerPersonnelManager,
		IconID:                     r.IconID,
		InitialPrice:               r.InitialPrice,
		Investors:                  investors,
		LPOfferTables:              r.LPOfferTables,
		MainActivityID:             r.MainActivityID,
		MinSecurity:                r.MinSecurity,
		MinimumJoinStanding:        r.MinimumJoinStanding,
		NameID:                     r.NameID,
		PublicShares:               r.PublicShares,
		RaceID:                     r.RaceID,
		SecondaryActivityID:        r.SecondaryActivityID,
		SendCharTerminationMessage: r.SendCharTerminationMessage,
		Shares:                     r.Shares,
		Size:                       size,
		SizeFactor:                 r.SizeFactor,
		SolarSystemID:              r.SolarSystemID,
		StationID:                  r.StationID,
		TaxRate:                    r.TaxRate,
		TickerName:                 r.TickerName,
		UniqueName:                 r.UniqueName,
	}
	for _, divID := range slices.Sorted(maps.Keys(divisions)) {
		div := divisions[divID]
		c.Divisions = append(c.Divisions, wire.Division{
			DivisionID:     divID,
			DivisionNumber: div.DivisionNumber,
			LeaderID:       div.LeaderID,
			Size:           div.Size,
		})
	}
	return c, nil
}

const npcCorporationsSchema = `
CREATE TABLE npc_corporations (
	npc_corporation_id INTEGER PRIMARY KEY,
	name_id INTEGER NOT NULL,
	ticker_name TEXT NOT NULL,
	description_id INTEGER,
	icon_id INTEGER,
	data BLOB NOT NULL
);
`

func writeNpcCorporations(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "npccorporations")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[npcCorporationRecord](env, "npc_corporations", raw)
	if err != nil {
		return err
	}

	var lookup []wire.LookupEntry
	err = pipeline.WriteDatabase(env.Logger, d.staticFile(NpcCorporationsFile), npcCorporationsSchema, func(conn *sqlite.Conn) error {
		for _, rec := range records {
			id, err := rec.ID()
			if err != nil {
				return err
			}
			corp, err := rec.Value.corporation(id)
			if err != nil {
				if rerr := env.Reject("npc_corporations", rec.Key, err); rerr != nil {
					return rerr
				}
				continue
			}
			if err := pipeline.Exec(conn,
				"INSERT INTO npc_corporations (npc_corporation_id, name_id, ticker_name, description_id, icon_id, data) VALUES (?, ?, ?, ?, ?, ?)",
				id, corp.NameID, corp.TickerName, pipeline.NullInt(corp.DescriptionID), pipeline.NullInt(corp.IconID), corp.Marshal(),
			); err != nil {
				return err
			}
			lookup = append(lookup, wire.LookupEntry{ID: id, NameID: corp.NameID, DescriptionID: corp.DescriptionID})
		}
		return nil
	})
	if err != nil {
		return err
	}
	env.StageLogger(Key).WithField("rows", len(lookup)).Info("npc_corporations_written")
	return writeFile(env, d.locFile(NpcCorporationLookupFile), "npc_corporation_lookup_written", len(lookup), wire.MarshalLookup(lookup))
}

type stationOperationRecord struct {
	ActivityID          int64            `mapstructure:"activityID" fsd:"required"`
	Border              float64          `mapstructure:"border" fsd:"required"`
	Corridor            float64          `mapstructure:"corridor" fsd:"required"`
	DescriptionID       *int64           `mapstructure:"descriptionID"`
	Fringe              float64          `mapstructure:"fringe" fsd:"required"`
	Hub                 float64          `mapstructure:"hub" fsd:"required"`
	ManufacturingFactor float64          `mapstructure:"manufacturingFactor" fsd:"required"`
	OperationNameID     int64            `mapstructure:"operationNameID" fsd:"required"`
	Ratio               float64          `mapstructure:"ratio" fsd:"required"`
	ResearchFactor      float64          `mapstructure:"researchFactor" fsd:"required"`
	Services            []int64          `mapstructure:"services"`
	StationTypes        map[string]int64 `mapstructure:"stationTypes"`
}

// stationTypes 返回按类型 ID 升序的空间站类型，键（种族）不输出。
func (r stationOperationRecord) stationTypes() []int64 {
	types := slices.Collect(maps.Values(r.StationTypes))
	slices.Sort(types)
	return types
}

const stationOperationsSchema = `
CREATE TABLE station_operations (
	operation_id INTEGER PRIMARY KEY,
	name_id INTEGER NOT NULL,
	description_id INTEGER,
	data BLOB NOT NULL
);
`

func writeStationOperations(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "stationoperations")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[stationOperationRecord](env, "station_operations", raw)
	if err != nil {
		return err
	}

	lookup := make([]wire.LookupEntry, 0, len(records))
	err = pipeline.WriteDatabase(env.Logger, d.staticFile(StationOperationsFile), stationOperationsSchema, func(conn *sqlite.Conn) error {
		for _, rec := range records {
			id, err := rec.ID()
			if err != nil {
				return err
			}
			v := rec.Value
			op := wire.StationOperation{
				OperationID:         id,
				ActivityID:          v.ActivityID,
				Border:              v.Border,
				Corridor:            v.Corridor,
				DescriptionID:       v.DescriptionID,
				Fringe:              v.Fringe,
				Hub:                 v.Hub,
				ManufacturingFactor: v.ManufacturingFactor,
				OperationNameID:     v.OperationNameID,
				Ratio:               v.Ratio,
				ResearchFactor:      v.ResearchFactor,
				Services:            v.Services,
				StationTypes:        v.stationTypes(),
			}
			if err := pipeline.Exec(conn,
				"INSERT INTO station_operations (operation_id, name_id, description_id, data) VALUES (?, ?, ?, ?)",
				id, v.OperationNameID, pipeline.NullInt(v.DescriptionID), op.Marshal(),
			); err != nil {
				return err
			}
			lookup = append(lookup, wire.LookupEntry{ID: id, NameID: v.OperationNameID, DescriptionID: v.DescriptionID})
		}
		return nil
	})
	if err != nil {
		return err
	}
	env.StageLogger(Key).WithField("rows", len(lookup)).Info("station_operations_written")
	return writeFile(env, d.locFile(StationOperationLookupFile), "station_operation_lookup_written", len(lookup), wire.MarshalLookup(lookup))
}
