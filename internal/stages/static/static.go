// Package static extracts item types, groups, factions, corporations and the
// skin tables into the bundle's static directory, plus the localization
// lookups that go with them.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
)

const Key = "static"

// 输出文件名，.pb 与 .db 位于 static/，查找表位于 localizations/。
const (
	TypesFile             = "types.pb"
	TypeDogmaFile         = "type_dogma.db"
	TypeMaterialsFile     = "type_materials.db"
	CategoriesFile        = "categories.pb"
	GroupsFile            = "groups.pb"
	MetaGroupsFile        = "meta_groups.pb"
	FactionsFile          = "factions.pb"
	MarketGroupsFile      = "market_groups.pb"
	NpcCorporationsFile   = "npc_corporations.db"
	StationOperationsFile = "station_operations.db"
	SkinsFile             = "skins.db"

	TypeLookupFile             = "type_localization_lookup.pb"
	NpcCorporationLookupFile   = "npc_corporation_localization_lookup.pb"
	StationOperationLookupFile = "station_operation_localization_lookup.pb"
)

func init() {
	pipeline.MustRegister(pipeline.StageMetadata{
		Key:         Key,
		Order:       30,
		Description: "types, groups, factions, corporations and skins",
		Stage:       pipeline.StageFunc(Run),
	})
}

// dirs 是本阶段的两个输出目录。
type dirs struct {
	static string
	loc    string
}

func (d dirs) staticFile(name string) string { return filepath.Join(d.static, name) }
func (d dirs) locFile(name string) string    { return filepath.Join(d.loc, name) }

type step struct {
	name string
	run  func(ctx context.Context, env *pipeline.Env, d dirs) error
}

var steps = []step{
	{"types", writeTypes},
	{"type_dogma", writeTypeDogma},
	{"type_materials", writeTypeMaterials},
	{"categories", writeCategories},
	{"groups", writeGroups},
	{"meta_groups", writeMetaGroups},
	{"factions", writeFactions},
	{"market_groups", writeMarketGroups},
	{"npc_corporations", writeNpcCorporations},
	{"station_operations", writeStationOperations},
	{"skins", writeSkins},
}

// Run 依次生成 static/ 下的全部文件，任一步失败即停止。
func Run(ctx context.Context, env *pipeline.Env) error {
	staticDir, err := env.Dir("static")
	if err != nil {
		return err
	}
	locDir, err := env.Dir("localizations")
	if err != nil {
		return err
	}
	d := dirs{static: staticDir, loc: locDir}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.run(ctx, env, d); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// writeFile 写出一个 .pb 文件并记录条数。
func writeFile(env *pipeline.Env, path, event string, count int, data []byte) error {
	if _, err := pipeline.WriteOutput(env.Logger, path, data); err != nil {
		return err
	}
	env.StageLogger(Key).WithField("count", count).Info(event)
	return nil
}

// rawInt 读取未经校验的 FSD 数值字段。
func rawInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), n == float64(int64(n))
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// intKeys 把字符串键的 map 转为整数键，非整数键视为记录非法。
func intKeys[V any](in map[string]V) (map[int64]V, error) {
	out := make(map[int64]V, len(in))
	for k, v := range in {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("key %q is not an integer", k)
		}
		out[id] = v
	}
	return out, nil
}
