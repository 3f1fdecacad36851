package static

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/sqlite"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
)

const (
	skinsResource         = "res:/staticdata/skins.static"
	skinMaterialsResource = "res:/staticdata/skinmaterials.static"
	skinLicensesResource  = "res:/staticdata/skinlicenses.static"
)

const skinsSchema = `
CREATE TABLE skins (
	skin_id INTEGER PRIMARY KEY,
	internal_name TEXT NOT NULL,
	allow_ccp_devs INTEGER NOT NULL,
	skin_material_id INTEGER NOT NULL,
	visible_serenity INTEGER NOT NULL,
	visible_tranquility INTEGER NOT NULL
);
CREATE TABLE skin_materials (
	skin_material_id INTEGER PRIMARY KEY,
	display_name_id INTEGER NOT NULL,
	material_set_id INTEGER NOT NULL
);
CREATE TABLE skin_licenses (
	license_id INTEGER PRIMARY KEY,
	skin_id INTEGER NOT NULL,
	duration INTEGER NOT NULL
);
CREATE TABLE skin_types (
	skin_id INTEGER NOT NULL,
	type_id INTEGER NOT NULL,
	PRIMARY KEY (skin_id, type_id)
);
CREATE INDEX idx_skins_material ON skins (skin_material_id);
CREATE INDEX idx_skin_licenses_skin ON skin_licenses (skin_id);
CREATE INDEX idx_skin_types_type ON skin_types (type_id);
`

type skinRecord struct {
	InternalName       string  `mapstructure:"internalName" fsd:"required"`
	AllowCCPDevs       bool    `mapstructure:"allowCCPDevs"`
	SkinMaterialID     int64   `mapstructure:"skinMaterialID" fsd:"required"`
	VisibleSerenity    bool    `mapstructure:"visibleSerenity"`
	VisibleTranquility bool    `mapstructure:"visibleTranquility"`
	Types              []int64 `mapstructure:"types"`
}

type skinMaterialRecord struct {
	DisplayNameID int64 `mapstructure:"displayNameID" fsd:"required"`
	MaterialSetID int64 `mapstructure:"materialSetID" fsd:"required"`
}

type skinLicenseRecord struct {
	SkinID   int64 `mapstructure:"skinID" fsd:"required"`
	Duration int64 `mapstructure:"duration" fsd:"required"`
}

// tableLoader 把一个 .static 资源写入目标表。
type tableLoader struct {
	resID  string
	domain string
	insert func(conn *sqlite.Conn, key int64, value map[string]any) error
}

var skinLoaders = []tableLoader{
	{resID: skinsResource, domain: "skins", insert: insertSkin},
	{resID: skinMaterialsResource, domain: "skin_materials", insert: insertSkinMaterial},
	{resID: skinLicensesResource, domain: "skin_licenses", insert: insertSkinLicense},
}

// writeSkins 把三个皮肤资源写入同一个数据库，整体在一个事务内完成。
func writeSkins(ctx context.Context, env *pipeline.Env, d dirs) error {
	leaves := make([]string, len(skinLoaders))
	for i, l := range skinLoaders {
		leaf, err := env.Resources.Download(ctx, l.resID)
		if err != nil {
			return fmt.Errorf("%s: %w", l.resID, err)
		}
		leaves[i] = leaf.LocalPath
	}

	return pipeline.WriteDatabase(env.Logger, d.staticFile(SkinsFile), skinsSchema, func(conn *sqlite.Conn) error {
		for i, l := range skinLoaders {
			if err := loadTable(env, conn, l, leaves[i]); err != nil {
				return fmt.Errorf("%s: %w", l.resID, err)
			}
		}
		return nil
	})
}

func loadTable(env *pipeline.Env, conn *sqlite.Conn, l tableLoader, path string) error {
	rows := 0
	err := pipeline.ReadStaticCache(path, func(key int64, value map[string]any) error {
		if err := l.insert(conn, key, value); err != nil {
			var verr validationFailure
			if errors.As(err, &verr) {
				return env.Reject(l.domain, fmt.Sprint(key), verr.err)
			}
			return err
		}
		rows++
		return nil
	})
	if err != nil {
		return err
	}
	env.StageLogger(Key).WithFields(logrus.Fields{"table": l.domain, "rows": rows}).Info("table_written")
	return nil
}

func insertSkin(conn *sqlite.Conn, key int64, value map[string]any) error {
	var rec skinRecord
	if err := pipeline.Validate(value, &rec); err != nil {
		return validationFailure{err}
	}
	if err := pipeline.Exec(conn,
		"INSERT INTO skins (skin_id, internal_name, allow_ccp_devs, skin_material_id, visible_serenity, visible_tranquility) VALUES (?, ?, ?, ?, ?, ?)",
		key, rec.InternalName, rec.AllowCCPDevs, rec.SkinMaterialID, rec.VisibleSerenity, rec.VisibleTranquility,
	); err != nil {
		return err
	}
	for _, typeID := range rec.Types {
		if err := pipeline.Exec(conn, "INSERT OR IGNORE INTO skin_types (skin_id, type_id) VALUES (?, ?)", key, typeID); err != nil {
			return err
		}
	}
	return nil
}

func insertSkinMaterial(conn *sqlite.Conn, key int64, value map[string]any) error {
	var rec skinMaterialRecord
	if err := pipeline.Validate(value, &rec); err != nil {
		return validationFailure{err}
	}
	return pipeline.Exec(conn,
		"INSERT INTO skin_materials (skin_material_id, display_name_id, material_set_id) VALUES (?, ?, ?)",
		key, rec.DisplayNameID, rec.MaterialSetID,
	)
}

func insertSkinLicense(conn *sqlite.Conn, key int64, value map[string]any) error {
	var rec skinLicenseRecord
	if err := pipeline.Validate(value, &rec); err != nil {
		return validationFailure{err}
	}
	return pipeline.Exec(conn,
		"INSERT INTO skin_licenses (license_id, skin_id, duration) VALUES (?, ?, ?)",
		key, rec.SkinID, rec.Duration,
	)
}

// validationFailure 区分记录结构错误与数据库错误。
type validationFailure struct{ err error }

func (v validationFailure) Error() string { return v.err.Error() }
