package static

import (
	"context"
	"maps"
	"slices"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/wire"
)

type categoryRecord struct {
	CategoryNameID int64  `mapstructure:"categoryNameID" fsd:"required"`
	IconID         *int64 `mapstructure:"iconID"`
	Published      bool   `mapstructure:"published" fsd:"required"`
}

type groupRecord struct {
	GroupNameID          int64  `mapstructure:"groupNameID" fsd:"required"`
	CategoryID           int64  `mapstructure:"categoryID" fsd:"required"`
	IconID               *int64 `mapstructure:"iconID"`
	Anchorable           bool   `mapstructure:"anchorable"`
	FittableNonSingleton bool   `mapstructure:"fittableNonSingleton"`
	Anchored             bool   `mapstructure:"anchored"`
	Published            bool   `mapstructure:"published" fsd:"required"`
	UseBasePrice         bool   `mapstructure:"useBasePrice"`
}

func writeCategories(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "categories")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[categoryRecord](env, "categories", raw)
	if err != nil {
		return err
	}
	categories := make([]wire.Category, 0, len(records))
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return err
		}
		categories = append(categories, wire.Category{
			CategoryID:     id,
			CategoryNameID: rec.Value.CategoryNameID,
			IconID:         rec.Value.IconID,
			Published:      rec.Value.Published,
		})
	}
	return writeFile(env, d.staticFile(CategoriesFile), "categories_written", len(categories), wire.MarshalCategories(categories))
}

func writeGroups(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "groups")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[groupRecord](env, "groups", raw)
	if err != nil {
		return err
	}
	groups := make([]wire.Group, 0, len(records))
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return err
		}
		v := rec.Value
		groups = append(groups, wire.Group{
			GroupID:              id,
			GroupNameID:          v.GroupNameID,
			CategoryID:           v.CategoryID,
			IconID:               v.IconID,
			Anchorable:           v.Anchorable,
			FittableNonSingleton: v.FittableNonSingleton,
			Anchored:             v.Anchored,
			Published:            v.Published,
			UseBasePrice:         v.UseBasePrice,
		})
	}
	return writeFile(env, d.staticFile(GroupsFile), "groups_written", len(groups), wire.MarshalGroups(groups))
}

type metaGroupRecord struct {
	NameID int64  `mapstructure:"nameID" fsd:"required"`
	IconID *int64 `mapstructure:"iconID"`
}

func writeMetaGroups(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "metagroups")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[metaGroupRecord](env, "meta_groups", raw)
	if err != nil {
		return err
	}
	groups := make([]wire.MetaGroup, 0, len(records))
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return err
		}
		groups = append(groups, wire.MetaGroup{MetaGroupID: id, NameID: rec.Value.NameID, IconID: rec.Value.IconID})
	}
	return writeFile(env, d.staticFile(MetaGroupsFile), "meta_groups_written", len(groups), wire.MarshalMetaGroups(groups))
}

type marketGroupRecord struct {
	NameID        int64  `mapstructure:"nameID" fsd:"required"`
	DescriptionID *int64 `mapstructure:"descriptionID"`
	IconID        *int64 `mapstructure:"iconID"`
	ParentGroupID *int64 `mapstructure:"parentGroupID"`
	HasTypes      bool   `mapstructure:"hasTypes" fsd:"required"`
}

// writeMarketGroups 输出市场分组树：子分组来自 parentGroupID，物品来自 types 的 marketGroupID。
// 被引用但未定义的分组只记警告。
func writeMarketGroups(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "marketgroups")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[marketGroupRecord](env, "market_groups", raw)
	if err != nil {
		return err
	}

	byID := make(map[int64]*wire.MarketGroup, len(records))
	children := make(map[int64][]int64)
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return err
		}
		v := rec.Value
		byID[id] = &wire.MarketGroup{
			MarketGroupID: id,
			NameID:        v.NameID,
			DescriptionID: v.DescriptionID,
			IconID:        v.IconID,
			ParentGroupID: v.ParentGroupID,
			HasTypes:      v.HasTypes,
		}
		if v.ParentGroupID != nil {
			children[*v.ParentGroupID] = append(children[*v.ParentGroupID], id)
		}
	}

	types, err := marketTypes(env)
	if err != nil {
		return err
	}

	log := env.StageLogger(Key)
	referenced := make(map[int64]struct{}, len(children)+len(types))
	for id := range children {
		referenced[id] = struct{}{}
	}
	for id := range types {
		referenced[id] = struct{}{}
	}
	for _, id := range slices.Sorted(maps.Keys(referenced)) {
		if _, ok := byID[id]; !ok {
			log.WithField("market_group_id", id).Warn("market_group_undefined")
		}
	}

	out := make([]wire.MarketGroup, 0, len(byID))
	for _, id := range slices.Sorted(maps.Keys(byID)) {
		g := byID[id]
		g.Groups = children[id]
		g.Types = types[id]
		out = append(out, *g)
	}
	return writeFile(env, d.staticFile(MarketGroupsFile), "market_groups_written", len(out), wire.MarshalMarketGroups(out))
}

// marketTypes 按市场分组收集物品 ID，组内按 ID 升序。types 缺失时返回空表。
func marketTypes(env *pipeline.Env) (map[int64][]int64, error) {
	raw, err := env.OptionalFSD(Key, "types")
	if raw == nil || err != nil {
		return nil, err
	}
	out := make(map[int64][]int64)
	for key, value := range raw {
		def, ok := value.(map[string]any)
		if !ok {
			continue
		}
		group, ok := rawInt(def["marketGroupID"])
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			env.Logger.WithFields(logrus.Fields{"domain": "types", "key": key}).Warn("invalid_record_key")
			continue
		}
		out[group] = append(out[group], id)
	}
	for _, ids := range out {
		slices.Sort(ids)
	}
	return out, nil
}
