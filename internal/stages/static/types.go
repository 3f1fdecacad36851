package static

import (
	"context"

	"zombiezen.com/go/sqlite"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/wire"
)

type typeRecord struct {
	BasePrice             float64 `mapstructure:"basePrice" fsd:"required"`
	Capacity              float64 `mapstructure:"capacity" fsd:"required"`
	CertificateTemplate   *int64  `mapstructure:"certificateTemplate"`
	DescriptionID         *int64  `mapstructure:"descriptionID"`
	DesignerIDs           []int64 `mapstructure:"designerIDs"`
	FactionID             *int64  `mapstructure:"factionID"`
	GraphicID             *int64  `mapstructure:"graphicID"`
	GroupID               int64   `mapstructure:"groupID" fsd:"required"`
	IconID                *int64  `mapstructure:"iconID"`
	IsDynamicType         bool    `mapstructure:"isDynamicType"`
	IsisGroupID           *int64  `mapstructure:"isisGroupID"`
	MarketGroupID         *int64  `mapstructure:"marketGroupID"`
	MetaGroupID           *int64  `mapstructure:"metaGroupID"`
	MetaLevel             *int64  `mapstructure:"metaLevel"`
	PortionSize           int64   `mapstructure:"portionSize" fsd:"required"`
	Published             bool    `mapstructure:"published" fsd:"required"`
	QuoteAuthorID         *int64  `mapstructure:"quoteAuthorID"`
	QuoteID               *int64  `mapstructure:"quoteID"`
	RaceID                *int64  `mapstructure:"raceID"`
	Radius                float64 `mapstructure:"radius" fsd:"required"`
	SoundID               *int64  `mapstructure:"soundID"`
	TechLevel             *int64  `mapstructure:"techLevel"`
	TypeID                int64   `mapstructure:"typeID" fsd:"required"`
	TypeNameID            int64   `mapstructure:"typeNameID" fsd:"required"`
	VariationParentTypeID *int64  `mapstructure:"variationParentTypeID"`
	Volume                float64 `mapstructure:"volume" fsd:"required"`
	WreckTypeID           *int64  `mapstructure:"wreckTypeID"`
}

// writeTypes 写出 types.pb 与类型本地化查找表。记录键为准，忽略记录内的 typeID。
func writeTypes(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "types")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[typeRecord](env, "types", raw)
	if err != nil {
		return err
	}

	types := make([]wire.TypeDefinition, 0, len(records))
	lookup := make([]wire.LookupEntry, 0, len(records))
	for _, rec := range records {
		id, err := rec.ID()
		if err != nil {
			return err
		}
		v := rec.Value
		types = append(types, wire.TypeDefinition{
			TypeID:                id,
			TypeNameID:            v.TypeNameID,
			GroupID:               v.GroupID,
			BasePrice:             v.BasePrice,
			Capacity:              v.Capacity,
			PortionSize:           v.PortionSize,
			Published:             v.Published,
			Radius:                v.Radius,
			Volume:                v.Volume,
			IsDynamicType:         v.IsDynamicType,
			CertificateTemplate:   v.CertificateTemplate,
			DescriptionID:         v.DescriptionID,
			DesignerIDs:           v.DesignerIDs,
			FactionID:             v.FactionID,
			GraphicID:             v.GraphicID,
			IconID:                v.IconID,
			IsisGroupID:           v.IsisGroupID,
			MarketGroupID:         v.MarketGroupID,
			MetaGroupID:           v.MetaGroupID,
			MetaLevel:             v.MetaLevel,
			QuoteAuthorID:         v.QuoteAuthorID,
			QuoteID:               v.QuoteID,
			RaceID:                v.RaceID,
			SoundID:               v.SoundID,
			TechLevel:             v.TechLevel,
			VariationParentTypeID: v.VariationParentTypeID,
			WreckTypeID:           v.WreckTypeID,
		})
		lookup = append(lookup, wire.LookupEntry{ID: id, NameID: v.TypeNameID, DescriptionID: v.DescriptionID})
	}

	if err := writeFile(env, d.staticFile(TypesFile), "types_written", len(types), wire.MarshalTypes(types)); err != nil {
		return err
	}
	return writeFile(env, d.locFile(TypeLookupFile), "type_lookup_written", len(lookup), wire.MarshalLookup(lookup))
}

type dogmaRecord struct {
	DogmaAttributes []struct {
		AttributeID int64   `mapstructure:"attributeID"`
		Value       float64 `mapstructure:"value"`
	} `mapstructure:"dogmaAttributes"`
	DogmaEffects []struct {
		EffectID  int64 `mapstructure:"effectID"`
		IsDefault bool  `mapstructure:"isDefault"`
	} `mapstructure:"dogmaEffects"`
}

const typeDogmaSchema = `
CREATE TABLE type_dogma (
	type_id INTEGER PRIMARY KEY,
	dogma_data BLOB NOT NULL
);
`

func writeTypeDogma(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "typeDogma")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[dogmaRecord](env, "type_dogma", raw)
	if err != nil {
		return err
	}
	err = pipeline.WriteDatabase(env.Logger, d.staticFile(TypeDogmaFile), typeDogmaSchema, func(conn *sqlite.Conn) error {
		for _, rec := range records {
			id, err := rec.ID()
			if err != nil {
				return err
			}
			var dogma wire.TypeDogma
			for _, a := range rec.Value.DogmaAttributes {
				dogma.Attributes = append(dogma.Attributes, wire.DogmaAttribute{AttributeID: a.AttributeID, Value: a.Value})
			}
			for _, e := range rec.Value.DogmaEffects {
				dogma.Effects = append(dogma.Effects, wire.DogmaEffect{EffectID: e.EffectID, IsDefault: e.IsDefault})
			}
			if err := pipeline.Exec(conn, "INSERT INTO type_dogma (type_id, dogma_data) VALUES (?, ?)", id, dogma.Marshal()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	env.StageLogger(Key).WithField("rows", len(records)).Info("type_dogma_written")
	return nil
}

type materialsRecord struct {
	Materials []struct {
		MaterialTypeID int64 `mapstructure:"materialTypeID"`
		Quantity       int64 `mapstructure:"quantity"`
	} `mapstructure:"materials"`
}

const typeMaterialsSchema = `
CREATE TABLE type_materials (
	type_id INTEGER PRIMARY KEY,
	materials_data BLOB NOT NULL
);
`

func writeTypeMaterials(_ context.Context, env *pipeline.Env, d dirs) error {
	raw, err := env.OptionalFSD(Key, "typematerials")
	if raw == nil || err != nil {
		return err
	}
	records, err := pipeline.Collect[materialsRecord](env, "type_materials", raw)
	if err != nil {
		return err
	}
	err = pipeline.WriteDatabase(env.Logger, d.staticFile(TypeMaterialsFile), typeMaterialsSchema, func(conn *sqlite.Conn) error {
		for _, rec := range records {
			id, err := rec.ID()
			if err != nil {
				return err
			}
			var mats wire.TypeMaterials
			for _, m := range rec.Value.Materials {
				mats.Materials = append(mats.Materials, wire.Material{MaterialTypeID: m.MaterialTypeID, Quantity: m.Quantity})
			}
			if err := pipeline.Exec(conn, "INSERT INTO type_materials (type_id, materials_data) VALUES (?, ?)", id, mats.Marshal()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	env.StageLogger(Key).WithField("rows", len(records)).Info("type_materials_written")
	return nil
}
