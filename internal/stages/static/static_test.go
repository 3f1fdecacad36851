package static

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/stages/stagetest"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/wire"
)

func int64p(v int64) *int64 { return &v }

func staticCache(t *testing.T, env *pipeline.Env, name string, rows map[int64]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	conn, err := pipeline.CreateDatabase(env.Logger, path, "CREATE TABLE cache (key INTEGER PRIMARY KEY, value TEXT NOT NULL);")
	require.NoError(t, err)
	for key, value := range rows {
		require.NoError(t, pipeline.Exec(conn, "INSERT INTO cache (key, value) VALUES (?, ?)", key, value))
	}
	require.NoError(t, conn.Close())
	return path
}

func setupStatic(t *testing.T, policy string) (stagetest.Env, *stagetest.Resources) {
	res := stagetest.NewResources(t)
	env := stagetest.NewEnv(t, res, policy)

	env.WriteFSD(t, "categories", `{
		"6": {"categoryNameID": 63539, "iconID": 21, "published": 1},
		"4": {"categoryNameID": 63537, "published": 0},
		"9": {"categoryNameID": "oops", "published": 1}
	}`)
	env.WriteFSD(t, "groups", `{
		"25": {"groupNameID": 63606, "categoryID": 6, "anchorable": 0, "anchored": 0,
			"fittableNonSingleton": 0, "published": true, "useBasePrice": false}
	}`)

	res.AddFile(t, skinsResource, staticCache(t, env.Env, "skins.static", map[int64]string{
		1: `{"internalName": "Rifter Krusual", "allowCCPDevs": false, "skinMaterialID": 7,
			"visibleSerenity": true, "visibleTranquility": true, "types": [587, 587, 596]}`,
		2: `{"allowCCPDevs": true}`,
	}))
	res.AddFile(t, skinMaterialsResource, staticCache(t, env.Env, "skinmaterials.static", map[int64]string{
		7: `{"displayNameID": 500100, "materialSetID": 12}`,
	}))
	res.AddFile(t, skinLicensesResource, staticCache(t, env.Env, "skinlicenses.static", map[int64]string{
		34000: `{"licenseTypeID": 34000, "skinID": 1, "duration": -1}`,
	}))
	return env, res
}

func TestRunWritesCategoriesAndGroups(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	require.NoError(t, Run(context.Background(), env.Env))

	got, err := os.ReadFile(filepath.Join(env.BundleRoot, "static", CategoriesFile))
	require.NoError(t, err)
	want := wire.MarshalCategories([]wire.Category{
		{CategoryID: 4, CategoryNameID: 63537, Published: false},
		{CategoryID: 6, CategoryNameID: 63539, IconID: int64p(21), Published: true},
	})
	assert.Equal(t, want, got)

	got, err = os.ReadFile(filepath.Join(env.BundleRoot, "static", GroupsFile))
	require.NoError(t, err)
	assert.Equal(t, wire.MarshalGroups([]wire.Group{
		{GroupID: 25, GroupNameID: 63606, CategoryID: 6, Published: true},
	}), got)

	assert.Contains(t, env.Logs.String(), "invalid_record")
}

func TestRunWritesSkinTables(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	require.NoError(t, Run(context.Background(), env.Env))

	conn, err := sqlite.OpenConn(filepath.Join(env.BundleRoot, "static", SkinsFile), sqlite.OpenReadOnly)
	require.NoError(t, err)
	defer conn.Close()

	count := func(query string) int64 {
		var n int64
		require.NoError(t, sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				n = stmt.ColumnInt64(0)
				return nil
			},
		}))
		return n
	}
	assert.EqualValues(t, 1, count("SELECT COUNT(*) FROM skins"))
	assert.EqualValues(t, 2, count("SELECT COUNT(*) FROM skin_types WHERE skin_id = 1"))
	assert.EqualValues(t, 500100, count("SELECT display_name_id FROM skin_materials WHERE skin_material_id = 7"))
	assert.EqualValues(t, -1, count("SELECT duration FROM skin_licenses WHERE license_id = 34000"))
	assert.EqualValues(t, 1, count("SELECT visible_tranquility FROM skins WHERE skin_id = 1"))
}

func TestRunFatalPolicyStopsOnInvalidRecord(t *testing.T) {
	env, _ := setupStatic(t, config.PolicyFatal)
	err := Run(context.Background(), env.Env)

	var verr *pipeline.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "categories", verr.Domain)
	assert.Equal(t, "9", verr.Key)
}

func TestRunFailsWhenSkinResourceMissing(t *testing.T) {
	res := stagetest.NewResources(t)
	env := stagetest.NewEnv(t, res, "")
	env.WriteFSD(t, "categories", `{}`)
	env.WriteFSD(t, "groups", `{}`)

	err := Run(context.Background(), env.Env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), skinsResource)
}

func TestStageIsRegistered(t *testing.T) {
	meta, ok := pipeline.Resolve(Key)
	require.True(t, ok)
	assert.Equal(t, 30, meta.Order)
}
