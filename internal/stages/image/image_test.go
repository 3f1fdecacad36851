package image

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/resource"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/stages/stagetest"
)

func TestSelectGraphics(t *testing.T) {
	names := []string{
		"587_64.png",
		"587_128.png",
		"587_64_bp.png",
		"587_64_bpc.png",
		"587_64_t2.png",
		"587_64_faction.png",
		"596_64.png",
		"587_64_a.png",
	}
	got := SelectGraphics("587", names)
	assert.Equal(t, map[string]string{
		"":     "587_64.png",
		"_bp":  "587_64_bp.png",
		"_bpc": "587_64_bpc.png",
	}, got)
	assert.Empty(t, SelectGraphics("1", []string{"2_64.png"}))
}

func setupImages(t *testing.T) (stagetest.Env, *stagetest.Resources) {
	res := stagetest.NewResources(t)
	env := stagetest.NewEnv(t, res, "")

	env.WriteFSD(t, "iconids", `{
		"21": {"iconFile": "res:/UI/Texture/Icons/21_64_1.png"},
		"22": {"iconFile": "res:/ui/texture/icons/missing.png"},
		"23": {"description": "no file"}
	}`)
	env.WriteFSD(t, "graphicids", `{
		"38": {"iconInfo": {"folder": "res:/UI/Texture/Icons/Types/"}},
		"39": {"graphicFile": "res:/dx9/model/ship.red"},
		"40": {"iconInfo": {"folder": "res:/ui/texture/icons/gone"}}
	}`)

	res.Add(t, "res:/ui/texture/icons/21_64_1.png", []byte("icon-21"))
	res.Add(t, "res:/ui/texture/icons/types/38_64.png", []byte("g-38"))
	res.Add(t, "res:/ui/texture/icons/types/38_64_bpc.png", []byte("g-38-bpc"))
	res.Add(t, "res:/ui/texture/icons/types/38_64_t2.png", []byte("g-38-t2"))
	return env, res
}

func TestRunCopiesIconsAndGraphics(t *testing.T) {
	env, res := setupImages(t)
	require.NoError(t, Run(context.Background(), env.Env))

	read := func(parts ...string) string {
		data, err := os.ReadFile(filepath.Join(append([]string{env.BundleRoot, "images"}, parts...)...))
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "icon-21", read("icons", "21.png"))
	assert.Equal(t, "g-38", read("graphics", "38.png"))
	assert.Equal(t, "g-38-bpc", read("graphics", "38_bpc.png"))

	_, err := os.Stat(filepath.Join(env.BundleRoot, "images", "graphics", "38_bp.png"))
	assert.True(t, os.IsNotExist(err))

	logs := env.Logs.String()
	assert.Contains(t, logs, "image_missing")
	assert.Contains(t, logs, "graphic_folder_missing")
	assert.Contains(t, logs, "invalid_record")
	assert.NotContains(t, res.Downloads(), "res:/ui/texture/icons/types/38_64_t2.png")
}

func TestRunFailsOnDownloadError(t *testing.T) {
	env, res := setupImages(t)
	res.Fail("res:/ui/texture/icons/21_64_1.png", &resource.Error{
		Kind:     resource.KindNetwork,
		ResID:    "res:/ui/texture/icons/21_64_1.png",
		Attempts: 3,
		Err:      errors.New("status 503"),
	})

	err := Run(context.Background(), env.Env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, resource.ErrNetwork))
}

func setupFactionImages(t *testing.T) (stagetest.Env, *stagetest.Resources, *atomic.Int64) {
	env, res := setupImages(t)
	env.WriteFSD(t, "factionids", `{
		"500001": {"flatLogo": "caldari", "flatLogoWithName": "caldari_name"},
		"500002": {"flatLogo": "minmatar"},
		"500404": {}
	}`)
	res.Add(t, "res:/ui/texture/eveicon/faction_logos/caldari_256px.png", []byte("logo-caldari"))
	res.Add(t, "res:/ui/texture/eveicon/faction_logos/caldari_name_256px.png", []byte("logo-caldari-name"))
	res.Add(t, skinIconsFolder+"/amarr_gold.png", []byte("skin-gold"))
	res.Add(t, skinIconsFolder+"/readme.txt", []byte("ignored"))

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/corporations/500404/logo" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("icon" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	env.HTTP = srv.Client()
	env.Workspace.Metadata.ImageService = map[string]string{
		config.ImageNPCFaction: srv.URL + "/corporations/{faction_id}/logo",
	}
	return env, res, &hits
}

func TestRunCopiesFactionAndSkinImages(t *testing.T) {
	env, _, hits := setupFactionImages(t)
	require.NoError(t, Run(context.Background(), env.Env))

	read := func(parts ...string) string {
		data, err := os.ReadFile(filepath.Join(append([]string{env.BundleRoot, "images"}, parts...)...))
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "logo-caldari", read("factions", "logos", "caldari.png"))
	assert.Equal(t, "logo-caldari-name", read("factions", "logos", "caldari_name.png"))
	assert.Equal(t, "icon/corporations/500001/logo", read("factions", "icons", "500001.png"))
	assert.Equal(t, "icon/corporations/500002/logo", read("factions", "icons", "500002.png"))
	assert.Equal(t, "skin-gold", read("skins", "materials", "amarr_gold.png"))
	assert.EqualValues(t, 3, hits.Load())

	assert.NoFileExists(t, filepath.Join(env.BundleRoot, "images", "factions", "icons", "500404.png"))
	assert.NoFileExists(t, filepath.Join(env.BundleRoot, "images", "factions", "logos", "minmatar.png"))
	assert.NoFileExists(t, filepath.Join(env.BundleRoot, "images", "skins", "materials", "readme.txt"))

	logs := env.Logs.String()
	assert.Contains(t, logs, "HTTP 404")
	assert.Contains(t, logs, "faction_logos/minmatar_256px.png")
}

func TestRunSkipsFactionIconsWithoutImageService(t *testing.T) {
	env, _, hits := setupFactionImages(t)
	env.HTTP = nil
	require.NoError(t, Run(context.Background(), env.Env))

	assert.Zero(t, hits.Load())
	assert.FileExists(t, filepath.Join(env.BundleRoot, "images", "factions", "logos", "caldari.png"))
	assert.NoFileExists(t, filepath.Join(env.BundleRoot, "images", "factions", "icons", "500001.png"))
	assert.Contains(t, env.Logs.String(), "image_service_disabled")
}

func TestRunLogsMissingSkinMaterialFolder(t *testing.T) {
	env, _ := setupImages(t)
	require.NoError(t, Run(context.Background(), env.Env))
	assert.Contains(t, env.Logs.String(), "skin_material_icons_missing")
}

func TestStageIsRegistered(t *testing.T) {
	meta, ok := pipeline.Resolve(Key)
	require.True(t, ok)
	assert.Equal(t, 10, meta.Order)
}
