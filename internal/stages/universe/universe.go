// Package universe decodes the region, constellation and solar system tables
// and writes the universe database plus the localization lookups for their names.
package universe

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/sqlite"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/wire"
)

const (
	Key = "universe"

	DatabaseFile            = "universe.db"
	RegionLookupFile        = "region_localization_lookup.pb"
	ConstellationLookupFile = "constellation_localization_lookup.pb"
	SystemLookupFile        = "system_localization_lookup.pb"

	regionsSchemaResource        = "res:/staticdata/regions.schema"
	regionsResource              = "res:/staticdata/regions.static"
	constellationsSchemaResource = "res:/staticdata/constellations.schema"
	constellationsResource       = "res:/staticdata/constellations.static"
	systemsSchemaResource        = "res:/staticdata/systems.schema"
	systemsResource              = "res:/staticdata/systems.static"
)

// 虫洞等级（wormholeClassID）取值。
const (
	classHighSec      = 7
	classLowSec       = 8
	classNullSecFirst = 9
	classNullSecLast  = 11
	classAbyssalFirst = 19
	classAbyssalLast  = 23
	classPochven      = 25

	voidRegionMin = 14_000_000
	voidRegionMax = 15_000_000
)

func init() {
	pipeline.MustRegister(pipeline.StageMetadata{
		Key:         Key,
		Order:       40,
		Description: "regions, constellations and solar systems",
		Stage:       pipeline.StageFunc(Run),
	})
}

type point struct {
	X float64 `mapstructure:"x"`
	Y float64 `mapstructure:"y"`
	Z float64 `mapstructure:"z"`
}

func (p point) wire() wire.UniversePoint {
	return wire.UniversePoint{X: p.X, Y: p.Y, Z: p.Z}
}

type regionRecord struct {
	NameID           int64   `mapstructure:"nameID" fsd:"required"`
	Center           point   `mapstructure:"center" fsd:"required"`
	DescriptionID    *int64  `mapstructure:"descriptionID"`
	Neighbours       []int64 `mapstructure:"neighbours"`
	ConstellationIDs []int64 `mapstructure:"constellationIDs"`
	SolarSystemIDs   []int64 `mapstructure:"solarSystemIDs"`
	FactionID        *int64  `mapstructure:"factionID"`
	WormholeClassID  *int64  `mapstructure:"wormholeClassID"`
}

type constellationRecord struct {
	NameID          int64   `mapstructure:"nameID" fsd:"required"`
	RegionID        int64   `mapstructure:"regionID" fsd:"required"`
	Center          point   `mapstructure:"center" fsd:"required"`
	FactionID       *int64  `mapstructure:"factionID"`
	WormholeClassID *int64  `mapstructure:"wormholeClassID"`
	Neighbours      []int64 `mapstructure:"neighbours"`
	SolarSystemIDs  []int64 `mapstructure:"solarSystemIDs"`
}

type systemRecord struct {
	NameID          int64   `mapstructure:"nameID" fsd:"required"`
	RegionID        int64   `mapstructure:"regionID" fsd:"required"`
	ConstellationID int64   `mapstructure:"constellationID" fsd:"required"`
	Center          point   `mapstructure:"center" fsd:"required"`
	SecurityStatus  float64 `mapstructure:"securityStatus" fsd:"required"`
	PseudoSecurity  float64 `mapstructure:"pseudoSecurity" fsd:"required"`
	FactionID       *int64  `mapstructure:"factionID"`
	WormholeClassID *int64  `mapstructure:"wormholeClassID"`
}

// system 是 systems 表的一行。
type system struct {
	SystemID        int64
	NameID          int64
	RegionID        int64
	ConstellationID int64
	FactionID       *int64
	SecurityStatus  float64
	WormholeClassID *int64
}

// RegionTypeOf 由虫洞等级推导星域类型；没有等级时为 Unknown。
func RegionTypeOf(regionID int64, wormholeClassID *int64) wire.RegionType {
	if wormholeClassID == nil {
		return wire.RegionTypeUnknown
	}
	class := *wormholeClassID
	switch {
	case class == classHighSec:
		return wire.RegionTypeHighSec
	case class == classLowSec:
		return wire.RegionTypeLowSec
	case class >= classNullSecFirst && class <= classNullSecLast:
		return wire.RegionTypeNullSec
	case class == classAbyssalFirst && regionID >= voidRegionMin && regionID < voidRegionMax:
		return wire.RegionTypeVoid
	case class >= classAbyssalFirst && class <= classAbyssalLast:
		return wire.RegionTypeAbyssal
	case class == classPochven:
		return wire.RegionTypePochven
	default:
		return wire.RegionTypeWormhole
	}
}

// Run 生成 universe/universe.db 与三个本地化索引文件。
func Run(ctx context.Context, env *pipeline.Env) error {
	regions, err := loadRegions(ctx, env)
	if err != nil {
		return fmt.Errorf("regions: %w", err)
	}
	constellations, err := loadConstellations(ctx, env)
	if err != nil {
		return fmt.Errorf("constellations: %w", err)
	}
	systems, err := loadSystems(ctx, env)
	if err != nil {
		return fmt.Errorf("systems: %w", err)
	}

	universeDir, err := env.Dir("universe")
	if err != nil {
		return err
	}
	err = pipeline.WriteDatabase(env.Logger, filepath.Join(universeDir, DatabaseFile), universeSchema, func(conn *sqlite.Conn) error {
		return insertAll(conn, regions, constellations, systems)
	})
	if err != nil {
		return err
	}

	locDir, err := env.Dir("localizations")
	if err != nil {
		return err
	}
	regionLookup := make([]wire.LookupEntry, len(regions))
	for i, r := range regions {
		regionLookup[i] = wire.LookupEntry{ID: r.RegionID, NameID: r.NameID, DescriptionID: r.DescriptionID}
	}
	constellationLookup := make([]wire.LookupEntry, len(constellations))
	for i, c := range constellations {
		constellationLookup[i] = wire.LookupEntry{ID: c.ConstellationID, NameID: c.NameID}
	}
	systemLookup := make([]wire.LookupEntry, len(systems))
	for i, s := range systems {
		systemLookup[i] = wire.LookupEntry{ID: s.SystemID, NameID: s.NameID}
	}
	lookups := []struct {
		file    string
		entries []wire.LookupEntry
	}{
		{RegionLookupFile, regionLookup},
		{ConstellationLookupFile, constellationLookup},
		{SystemLookupFile, systemLookup},
	}
	for _, l := range lookups {
		if _, err := pipeline.WriteOutput(env.Logger, filepath.Join(locDir, l.file), wire.MarshalLookup(l.entries)); err != nil {
			return err
		}
	}

	env.StageLogger(Key).WithFields(logrus.Fields{
		"regions":        len(regions),
		"constellations": len(constellations),
		"systems":        len(systems),
	}).Info("universe_written")
	return nil
}

func decodeTable(ctx context.Context, env *pipeline.Env, schemaID, binaryID string) (map[string]any, error) {
	value, err := env.Resources.Decode(ctx, schemaID, binaryID)
	if err != nil {
		return nil, err
	}
	table, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected dict at top level, got %T", binaryID, value)
	}
	return table, nil
}

func loadRegions(ctx context.Context, env *pipeline.Env) ([]wire.Region, error) {
	table, err := decodeTable(ctx, env, regionsSchemaResource, regionsResource)
	if err != nil {
		return nil, err
	}
	records, err := pipeline.Collect[regionRecord](env, "regions", table)
	if err != nil {
		return nil, err
	}
	out := make([]wire.Region, 0, len(records))
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return nil, err
		}
		v := rec.Value
		out = append(out, wire.Region{
			RegionID:         id,
			NameID:           v.NameID,
			Center:           v.Center.wire(),
			DescriptionID:    v.DescriptionID,
			Neighbours:       sorted(v.Neighbours),
			ConstellationIDs: sorted(v.ConstellationIDs),
			SolarSystemIDs:   sorted(v.SolarSystemIDs),
			FactionID:        v.FactionID,
			WormholeClassID:  v.WormholeClassID,
			Type:             RegionTypeOf(id, v.WormholeClassID),
		})
	}
	return out, nil
}

func loadConstellations(ctx context.Context, env *pipeline.Env) ([]wire.Constellation, error) {
	table, err := decodeTable(ctx, env, constellationsSchemaResource, constellationsResource)
	if err != nil {
		return nil, err
	}
	records, err := pipeline.Collect[constellationRecord](env, "constellations", table)
	if err != nil {
		return nil, err
	}
	out := make([]wire.Constellation, 0, len(records))
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return nil, err
		}
		v := rec.Value
		out = append(out, wire.Constellation{
			ConstellationID: id,
			NameID:          v.NameID,
			RegionID:        v.RegionID,
			Center:          v.Center.wire(),
			FactionID:       v.FactionID,
			WormholeClassID: v.WormholeClassID,
			Neighbours:      sorted(v.Neighbours),
			SolarSystemIDs:  sorted(v.SolarSystemIDs),
		})
	}
	return out, nil
}

func loadSystems(ctx context.Context, env *pipeline.Env) ([]system, error) {
	table, err := decodeTable(ctx, env, systemsSchemaResource, systemsResource)
	if err != nil {
		return nil, err
	}
	records, err := pipeline.Collect[systemRecord](env, "systems", table)
	if err != nil {
		return nil, err
	}
	out := make([]system, 0, len(records))
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return nil, err
		}
		v := rec.Value
		out = append(out, system{
			SystemID:        id,
			NameID:          v.NameID,
			RegionID:        v.RegionID,
			ConstellationID: v.ConstellationID,
			FactionID:       v.FactionID,
			SecurityStatus:  v.SecurityStatus,
			WormholeClassID: v.WormholeClassID,
		})
	}
	return out, nil
}

func sorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

const universeSchema = `
CREATE TABLE regions (
	region_id INTEGER PRIMARY KEY,
	name_id INTEGER NOT NULL,
	region_type INTEGER NOT NULL,
	faction_id INTEGER,
	region_data BLOB NOT NULL
);
CREATE TABLE constellations (
	constellation_id INTEGER PRIMARY KEY,
	name_id INTEGER NOT NULL,
	region_id INTEGER NOT NULL,
	faction_id INTEGER,
	wormhole_class_id INTEGER,
	constellation_data BLOB NOT NULL
);
CREATE TABLE systems (
	solar_system_id INTEGER PRIMARY KEY,
	name_id INTEGER NOT NULL,
	region_id INTEGER NOT NULL,
	constellation_id INTEGER NOT NULL,
	faction_id INTEGER,
	security_status REAL NOT NULL,
	wormhole_class_id INTEGER
);
CREATE INDEX idx_regions_type ON regions (region_type);
CREATE INDEX idx_constellations_region_id ON constellations (region_id);
CREATE INDEX idx_constellations_faction_id ON constellations (faction_id);
CREATE INDEX idx_constellations_wormhole_class_id ON constellations (wormhole_class_id);
CREATE INDEX idx_systems_region_id ON systems (region_id);
CREATE INDEX idx_systems_constellation_id ON systems (constellation_id);
CREATE INDEX idx_systems_faction_id ON systems (faction_id);
CREATE INDEX idx_systems_security_status ON systems (security_status);
CREATE INDEX idx_systems_wormhole_class_id ON systems (wormhole_class_id);
`

func insertAll(conn *sqlite.Conn, regions []wire.Region, constellations []wire.Constellation, systems []system) error {
	for _, r := range regions {
		if err := pipeline.Exec(conn,
			"INSERT INTO regions (region_id, name_id, region_type, faction_id, region_data) VALUES (?, ?, ?, ?, ?)",
			r.RegionID, r.NameID, int64(r.Type), pipeline.NullInt(r.FactionID), r.Marshal(),
		); err != nil {
			return fmt.Errorf("insert region %d: %w", r.RegionID, err)
		}
	}
	for _, c := range constellations {
		if err := pipeline.Exec(conn,
			"INSERT INTO constellations (constellation_id, name_id, region_id, faction_id, wormhole_class_id, constellation_data) VALUES (?, ?, ?, ?, ?, ?)",
			c.ConstellationID, c.NameID, c.RegionID, pipeline.NullInt(c.FactionID), pipeline.NullInt(c.WormholeClassID), c.Marshal(),
		); err != nil {
			return fmt.Errorf("insert constellation %d: %w", c.ConstellationID, err)
		}
	}
	for _, s := range systems {
		if err := pipeline.Exec(conn,
			"INSERT INTO systems (solar_system_id, name_id, region_id, constellation_id, faction_id, security_status, wormhole_class_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
			s.SystemID, s.NameID, s.RegionID, s.ConstellationID, pipeline.NullInt(s.FactionID), s.SecurityStatus, pipeline.NullInt(s.WormholeClassID),
		); err != nil {
			return fmt.Errorf("insert system %d: %w", s.SystemID, err)
		}
	}
	return nil
}
