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
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/stages/stagetest"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/wire"
)

func float64p(v float64) *float64 { return &v }
func stringp(v string) *string    { return &v }

func readBundle(t *testing.T, env stagetest.Env, parts ...string) []byte {
	t.Helper()
	got, err := os.ReadFile(filepath.Join(append([]string{env.BundleRoot}, parts...)...))
	require.NoError(t, err)
	return got
}

// queryRow 读取单行结果，列依次交给 scan。
func queryRow(t *testing.T, path, query string, scan func(stmt *sqlite.Stmt)) {
	t.Helper()
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	require.NoError(t, err)
	defer conn.Close()
	rows := 0
	require.NoError(t, sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rows++
			scan(stmt)
			return nil
		},
	}))
	require.Equal(t, 1, rows, query)
}

func TestRunWritesTypesAndLookup(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	env.WriteFSD(t, "types", `{
		"587": {"basePrice": 1000.5, "capacity": 140, "groupID": 25, "portionSize": 1,
			"published": 1, "radius": 31, "typeID": 587, "typeNameID": 233, "volume": 27289,
			"descriptionID": 234, "designerIDs": [1, 2], "marketGroupID": 61, "metaLevel": 0},
		"588": {"basePrice": 0, "capacity": 0, "groupID": 25, "portionSize": 1, "published": 0,
			"radius": 1, "typeID": 588, "typeNameID": 235, "volume": 1, "isDynamicType": true},
		"599": {"typeNameID": 236}
	}`)
	require.NoError(t, Run(context.Background(), env.Env))

	want := []wire.TypeDefinition{
		{
			TypeID: 587, TypeNameID: 233, GroupID: 25, BasePrice: 1000.5, Capacity: 140,
			PortionSize: 1, Published: true, Radius: 31, Volume: 27289,
			DescriptionID: int64p(234), DesignerIDs: []int64{1, 2}, MarketGroupID: int64p(61), MetaLevel: int64p(0),
		},
		{
			TypeID: 588, TypeNameID: 235, GroupID: 25, PortionSize: 1, Radius: 1, Volume: 1,
			IsDynamicType: true,
		},
	}
	assert.Equal(t, wire.MarshalTypes(want), readBundle(t, env, "static", TypesFile))
	assert.Equal(t, wire.MarshalLookup([]wire.LookupEntry{
		{ID: 587, NameID: 233, DescriptionID: int64p(234)},
		{ID: 588, NameID: 235},
	}), readBundle(t, env, "localizations", TypeLookupFile))
	assert.Contains(t, env.Logs.String(), `"key":"599"`)
}

func TestRunWritesTypeDogmaAndMaterials(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	env.WriteFSD(t, "typeDogma", `{
		"587": {"dogmaAttributes": [{"attributeID": 4, "value": 1067000}, {"attributeID": 9, "value": 350.5}],
			"dogmaEffects": [{"effectID": 11, "isDefault": 1}]}
	}`)
	env.WriteFSD(t, "typematerials", `{
		"587": {"materials": [{"materialTypeID": 34, "quantity": 25000}]},
		"588": {"materials": [{"materialTypeID": 34, "quantity": 1.5}]}
	}`)
	require.NoError(t, Run(context.Background(), env.Env))

	dogma := wire.TypeDogma{
		Attributes: []wire.DogmaAttribute{{AttributeID: 4, Value: 1067000}, {AttributeID: 9, Value: 350.5}},
		Effects:    []wire.DogmaEffect{{EffectID: 11, IsDefault: true}},
	}
	var blob []byte
	queryRow(t, filepath.Join(env.BundleRoot, "static", TypeDogmaFile),
		"SELECT dogma_data FROM type_dogma WHERE type_id = 587", func(stmt *sqlite.Stmt) {
			blob = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, blob)
		})
	assert.Equal(t, dogma.Marshal(), blob)

	materials := filepath.Join(env.BundleRoot, "static", TypeMaterialsFile)
	queryRow(t, materials, "SELECT materials_data FROM type_materials WHERE type_id = 587", func(stmt *sqlite.Stmt) {
		blob = make([]byte, stmt.ColumnLen(0))
		stmt.ColumnBytes(0, blob)
	})
	assert.Equal(t, wire.TypeMaterials{Materials: []wire.Material{{MaterialTypeID: 34, Quantity: 25000}}}.Marshal(), blob)
	queryRow(t, materials, "SELECT COUNT(*) FROM type_materials", func(stmt *sqlite.Stmt) {
		assert.EqualValues(t, 1, stmt.ColumnInt64(0))
	})
}

func TestRunWritesMarketGroupTree(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	env.WriteFSD(t, "marketgroups", `{
		"4": {"nameID": 100, "hasTypes": 0, "iconID": 1443},
		"61": {"nameID": 101, "hasTypes": 1, "parentGroupID": 4, "descriptionID": 102},
		"62": {"nameID": 103, "hasTypes": 1, "parentGroupID": 4},
		"70": {"nameID": 104, "hasTypes": 1, "parentGroupID": 999}
	}`)
	env.WriteFSD(t, "types", `{
		"603": {"marketGroupID": 61},
		"587": {"marketGroupID": 61},
		"34": {"marketGroupID": 1857},
		"35": {"published": 0}
	}`)
	require.NoError(t, Run(context.Background(), env.Env))

	want := wire.MarshalMarketGroups([]wire.MarketGroup{
		{MarketGroupID: 4, NameID: 100, IconID: int64p(1443), Groups: []int64{61, 62}},
		{MarketGroupID: 61, NameID: 101, DescriptionID: int64p(102), ParentGroupID: int64p(4), HasTypes: true, Types: []int64{587, 603}},
		{MarketGroupID: 62, NameID: 103, ParentGroupID: int64p(4), HasTypes: true},
		{MarketGroupID: 70, NameID: 104, ParentGroupID: int64p(999), HasTypes: true},
	})
	assert.Equal(t, want, readBundle(t, env, "static", MarketGroupsFile))

	logs := env.Logs.String()
	assert.Contains(t, logs, "market_group_undefined")
	assert.Contains(t, logs, `"market_group_id":999`)
	assert.Contains(t, logs, `"market_group_id":1857`)
}

func TestRunWritesFactionsAndMetaGroups(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	env.WriteFSD(t, "factions", `{
		"500001": {"nameID": 1, "descriptionID": 2, "iconID": 1439, "memberRaces": [1],
			"uniqueName": 1, "flatLogo": "caldari", "solarSystemID": 30000145,
			"corporationID": 1000035, "sizeFactor": 5},
		"500002": {"nameID": 3}
	}`)
	env.WriteFSD(t, "metagroups", `{"1": {"nameID": 66672}, "2": {"nameID": 66673, "iconID": 24150}}`)
	require.NoError(t, Run(context.Background(), env.Env))

	assert.Equal(t, wire.MarshalFactions([]wire.Faction{{
		FactionID: 500001, NameID: 1, DescriptionID: 2, IconID: 1439, MemberRaces: []int64{1},
		UniqueName: true, FlatLogo: stringp("caldari"), SolarSystemID: 30000145,
		CorporationID: int64p(1000035), SizeFactor: 5,
	}}), readBundle(t, env, "static", FactionsFile))
	assert.Equal(t, wire.MarshalMetaGroups([]wire.MetaGroup{
		{MetaGroupID: 1, NameID: 66672},
		{MetaGroupID: 2, NameID: 66673, IconID: int64p(24150)},
	}), readBundle(t, env, "static", MetaGroupsFile))
}

const corporationFixture = `{
	"1000035": {"deleted": 0, "extent": "G", "hasPlayerPersonnelManager": 0, "initialPrice": 0,
		"minSecurity": 0.0, "minimumJoinStanding": 0, "nameID": 400, "publicShares": 0,
		"sendCharTerminationMessage": 1, "shares": 100000000, "size": "H", "taxRate": 0.1,
		"tickerName": "CN", "uniqueName": 1, "descriptionID": 401, "sizeFactor": 5.5,
		"corporationTrades": {"34": 0.05, "35": 0.1}, "investors": {"1000036": 20},
		"divisions": {"24": {"divisionNumber": 2, "leaderID": 3003, "size": 5},
			"22": {"divisionNumber": 1, "leaderID": 3002, "size": 4}}},
	"1000036": {"deleted": 0, "extent": "X", "hasPlayerPersonnelManager": 0, "initialPrice": 0,
		"minSecurity": 0.0, "minimumJoinStanding": 0, "nameID": 402, "publicShares": 0,
		"sendCharTerminationMessage": 1, "shares": 1, "size": "H", "taxRate": 0.1,
		"tickerName": "XX", "uniqueName": 0}
}`

func TestRunWritesNpcCorporations(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	env.WriteFSD(t, "npccorporations", corporationFixture)
	require.NoError(t, Run(context.Background(), env.Env))

	want := wire.NpcCorporation{
		CorporationID:              1000035,
		CorporationTrades:          map[int64]float64{34: 0.05, 35: 0.1},
		DescriptionID:              int64p(401),
		Divisions:                  []wire.Division{{DivisionID: 22, DivisionNumber: 1, LeaderID: 3002, Size: 4}, {DivisionID: 24, DivisionNumber: 2, LeaderID: 3003, Size: 5}},
		Extent:                     wire.ExtentG,
		Investors:                  map[int64]int64{1000036: 20},
		NameID:                     400,
		SendCharTerminationMessage: true,
		Shares:                     100000000,
		Size:                       wire.SizeH,
		SizeFactor:                 float64p(5.5),
		TaxRate:                    0.1,
		TickerName:                 "CN",
		UniqueName:                 true,
	}
	db := filepath.Join(env.BundleRoot, "static", NpcCorporationsFile)
	queryRow(t, db, "SELECT name_id, ticker_name, description_id, icon_id, data FROM npc_corporations", func(stmt *sqlite.Stmt) {
		assert.EqualValues(t, 400, stmt.ColumnInt64(0))
		assert.Equal(t, "CN", stmt.ColumnText(1))
		assert.EqualValues(t, 401, stmt.ColumnInt64(2))
		assert.Equal(t, sqlite.TypeNull, stmt.ColumnType(3))
		blob := make([]byte, stmt.ColumnLen(4))
		stmt.ColumnBytes(4, blob)
		assert.Equal(t, want.Marshal(), blob)
	})
	assert.Equal(t, wire.MarshalLookup([]wire.LookupEntry{{ID: 1000035, NameID: 400, DescriptionID: int64p(401)}}),
		readBundle(t, env, "localizations", NpcCorporationLookupFile))
	assert.Contains(t, env.Logs.String(), `unknown extent`)
}

func TestRunFatalPolicyRejectsUnknownExtent(t *testing.T) {
	res := stagetest.NewResources(t)
	env := stagetest.NewEnv(t, res, config.PolicyFatal)
	env.WriteFSD(t, "npccorporations", corporationFixture)

	err := Run(context.Background(), env.Env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "npc_corporations")
	assert.Contains(t, err.Error(), "1000036")
	_, statErr := os.Stat(filepath.Join(env.BundleRoot, "localizations", NpcCorporationLookupFile))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunWritesStationOperations(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	env.WriteFSD(t, "stationoperations", `{
		"1": {"activityID": 1, "border": 0, "corridor": 0, "fringe": 0, "hub": 0,
			"manufacturingFactor": 0.98, "operationNameID": 900, "ratio": 1, "researchFactor": 1,
			"services": [5, 9], "stationTypes": {"1": 1531, "2": 1529, "4": 1530}}
	}`)
	require.NoError(t, Run(context.Background(), env.Env))

	want := wire.StationOperation{
		OperationID: 1, ActivityID: 1, ManufacturingFactor: 0.98, OperationNameID: 900,
		Ratio: 1, ResearchFactor: 1, Services: []int64{5, 9}, StationTypes: []int64{1529, 1530, 1531},
	}
	queryRow(t, filepath.Join(env.BundleRoot, "static", StationOperationsFile),
		"SELECT name_id, description_id, data FROM station_operations WHERE operation_id = 1", func(stmt *sqlite.Stmt) {
			assert.EqualValues(t, 900, stmt.ColumnInt64(0))
			assert.Equal(t, sqlite.TypeNull, stmt.ColumnType(1))
			blob := make([]byte, stmt.ColumnLen(2))
			stmt.ColumnBytes(2, blob)
			assert.Equal(t, want.Marshal(), blob)
		})
	assert.Equal(t, wire.MarshalLookup([]wire.LookupEntry{{ID: 1, NameID: 900}}),
		readBundle(t, env, "localizations", StationOperationLookupFile))
}

func TestRunSkipsMissingFSD(t *testing.T) {
	env, _ := setupStatic(t, config.PolicySkip)
	require.NoError(t, os.Remove(filepath.Join(env.Workspace.FSDPath, "groups.json")))
	require.NoError(t, Run(context.Background(), env.Env))

	_, err := os.Stat(filepath.Join(env.BundleRoot, "static", GroupsFile))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(env.BundleRoot, "static", FactionsFile))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.FileExists(t, filepath.Join(env.BundleRoot, "static", CategoriesFile))
	assert.FileExists(t, filepath.Join(env.BundleRoot, "static", SkinsFile))

	logs := env.Logs.String()
	assert.Contains(t, logs, "fsd_missing")
	assert.Contains(t, logs, `"fsd":"groups"`)
}
