// Package image copies item icons, type graphics, faction logos and skin
// material icons from the resource cache into the bundle's images directory,
// and downloads faction icons from the image service.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/resource"
)

const (
	Key = "image"

	copyWorkers = 8

	factionLogoPattern = "res:/ui/texture/eveicon/faction_logos/%s_256px.png"
	skinIconsFolder    = "res:/ui/texture/classes/skins/icons"
)

func init() {
	pipeline.MustRegister(pipeline.StageMetadata{
		Key:         Key,
		Order:       10,
		Description: "icons, graphics, faction logos and skin material icons",
		Stage:       pipeline.StageFunc(Run),
	})
}

type iconRecord struct {
	IconFile string `mapstructure:"iconFile" fsd:"required"`
}

type graphicRecord struct {
	IconInfo *struct {
		Folder string `mapstructure:"folder"`
	} `mapstructure:"iconInfo"`
}

type factionRecord struct {
	FlatLogo         string `mapstructure:"flatLogo"`
	FlatLogoWithName string `mapstructure:"flatLogoWithName"`
}

// job 是一次 资源 -> bundle 文件 的复制；url 非空时改为从图片服务下载。
type job struct {
	resID string
	url   string
	dest  string
}

// Run 生成 images/ 下的全部图片。
func Run(ctx context.Context, env *pipeline.Env) error {
	dirs := make(map[string]string)
	for name, parts := range map[string][]string{
		"icons":     {"images", "icons"},
		"graphics":  {"images", "graphics"},
		"logos":     {"images", "factions", "logos"},
		"factions":  {"images", "factions", "icons"},
		"materials": {"images", "skins", "materials"},
	} {
		dir, err := env.Dir(parts...)
		if err != nil {
			return err
		}
		dirs[name] = dir
	}

	icons, err := iconJobs(env, dirs["icons"])
	if err != nil {
		return fmt.Errorf("icons: %w", err)
	}
	graphics, err := graphicJobs(ctx, env, dirs["graphics"])
	if err != nil {
		return fmt.Errorf("graphics: %w", err)
	}
	factions, err := factionJobs(env, dirs["logos"], dirs["factions"])
	if err != nil {
		return fmt.Errorf("factions: %w", err)
	}
	materials, err := skinMaterialJobs(ctx, env, dirs["materials"])
	if err != nil {
		return fmt.Errorf("skin materials: %w", err)
	}

	jobs := slices.Concat(icons, graphics, factions, materials)
	return copyAll(ctx, env, jobs)
}

func iconJobs(env *pipeline.Env, dir string) ([]job, error) {
	raw, err := env.FSD.Get("iconids")
	if err != nil {
		return nil, err
	}
	records, err := pipeline.Collect[iconRecord](env, "icons", raw)
	if err != nil {
		return nil, err
	}
	jobs := make([]job, 0, len(records))
	for _, rec := range records {
		jobs = append(jobs, job{
			resID: strings.ToLower(rec.Value.IconFile),
			dest:  filepath.Join(dir, rec.Key+".png"),
		})
	}
	return jobs, nil
}

func graphicJobs(ctx context.Context, env *pipeline.Env, dir string) ([]job, error) {
	raw, err := env.FSD.Get("graphicids")
	if err != nil {
		return nil, err
	}
	records, err := pipeline.Collect[graphicRecord](env, "graphics", raw)
	if err != nil {
		return nil, err
	}
	logger := env.StageLogger(Key)

	var jobs []job
	for _, rec := range records {
		if rec.Value.IconInfo == nil || rec.Value.IconInfo.Folder == "" {
			continue
		}
		folder := strings.TrimSuffix(strings.ToLower(rec.Value.IconInfo.Folder), "/")
		leaves, err := env.Resources.List(ctx, folder, false)
		if errors.Is(err, resource.ErrNotFound) {
			logger.WithFields(logrus.Fields{"graphic_id": rec.Key, "folder": folder}).Warn("graphic_folder_missing")
			continue
		}
		if err != nil {
			return nil, err
		}
		names := make([]string, len(leaves))
		byName := make(map[string]string, len(leaves))
		for i, leaf := range leaves {
			names[i] = leaf.Name
			byName[leaf.Name] = leaf.ResID
		}
		for suffix, name := range SelectGraphics(rec.Key, names) {
			jobs = append(jobs, job{
				resID: byName[name],
				dest:  filepath.Join(dir, rec.Key+suffix+".png"),
			})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].dest < jobs[j].dest })
	return jobs, nil
}

// factionJobs 收集势力徽标（资源）与势力图标（图片服务）。
func factionJobs(env *pipeline.Env, logoDir, iconDir string) ([]job, error) {
	raw, err := env.OptionalFSD(Key, "factionids")
	if raw == nil || err != nil {
		return nil, err
	}
	records, err := pipeline.Collect[factionRecord](env, "faction_images", raw)
	if err != nil {
		return nil, err
	}
	logger := env.StageLogger(Key)

	iconsEnabled := env.HTTP != nil
	if !iconsEnabled {
		logger.Warn("image_service_disabled")
	} else if _, ok := env.Workspace.Metadata.ImageURL(config.ImageNPCFaction, nil); !ok {
		logger.WithField("kind", config.ImageNPCFaction).Warn("image_service_missing")
		iconsEnabled = false
	}

	var jobs []job
	for _, rec := range records {
		for _, logo := range []string{rec.Value.FlatLogo, rec.Value.FlatLogoWithName} {
			if logo == "" {
				logger.WithField("faction_id", rec.Key).Debug("faction_logo_unset")
				continue
			}
			jobs = append(jobs, job{
				resID: fmt.Sprintf(factionLogoPattern, logo),
				dest:  filepath.Join(logoDir, logo+".png"),
			})
		}
		if iconsEnabled {
			url, _ := env.Workspace.Metadata.ImageURL(config.ImageNPCFaction, map[string]string{"faction_id": rec.Key})
			jobs = append(jobs, job{url: url, dest: filepath.Join(iconDir, rec.Key+".png")})
		}
	}
	return jobs, nil
}

// skinMaterialJobs 复制皮肤材质目录下的全部 png。目录缺失时记录错误并跳过。
func skinMaterialJobs(ctx context.Context, env *pipeline.Env, dir string) ([]job, error) {
	leaves, err := env.Resources.List(ctx, skinIconsFolder, false)
	if errors.Is(err, resource.ErrNotFound) {
		env.StageLogger(Key).WithField("folder", skinIconsFolder).Error("skin_material_icons_missing")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var jobs []job
	for _, leaf := range leaves {
		if !strings.HasSuffix(strings.ToLower(leaf.Name), ".png") {
			continue
		}
		jobs = append(jobs, job{resID: leaf.ResID, dest: filepath.Join(dir, leaf.Name)})
	}
	return jobs, nil
}

// SelectGraphics 从目录文件名中挑选 64px 图：名称包含 "<id>_" 与 "_64"，
// 排除 t2/t3/faction 覆盖图。返回 后缀 -> 文件名，后缀为 "", "_bp", "_bpc"；
// 同一后缀有多个候选时取字典序最小者。
func SelectGraphics(id string, names []string) map[string]string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	out := make(map[string]string)
	for _, name := range sorted {
		lower := strings.ToLower(name)
		if !strings.Contains(lower, id+"_") || !strings.Contains(lower, "_64") {
			continue
		}
		if strings.Contains(lower, "t2") || strings.Contains(lower, "t3") || strings.Contains(lower, "faction") {
			continue
		}
		var suffix string
		switch {
		case strings.Contains(lower, "bpc"):
			suffix = "_bpc"
		case strings.Contains(lower, "bp"):
			suffix = "_bp"
		}
		if _, exists := out[suffix]; !exists {
			out[suffix] = name
		}
	}
	return out
}

// copyAll 并发下载并复制。缺失的资源与图片服务的非 200 响应记录警告，其它失败让整个阶段失败。
func copyAll(ctx context.Context, env *pipeline.Env, jobs []job) error {
	logger := env.StageLogger(Key)
	var copied, missing atomic.Int64

	p := pool.New().WithMaxGoroutines(copyWorkers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, j := range jobs {
		p.Go(func(ctx context.Context) error {
			var data []byte
			var err error
			if j.url != "" {
				data, err = fetchImage(ctx, env.HTTP, j.url)
			} else {
				data, err = readResource(ctx, env, j.resID)
			}
			var status statusError
			switch {
			case errors.Is(err, resource.ErrNotFound), errors.As(err, &status):
				missing.Add(1)
				logger.WithFields(logrus.Fields{"res_id": j.resID, "url": j.url, "dest": j.dest}).WithError(err).Warn("image_missing")
				return nil
			case err != nil:
				return err
			}
			if _, err := pipeline.WriteOutput(env.Logger, j.dest, data); err != nil {
				return err
			}
			copied.Add(1)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"copied":  copied.Load(),
		"missing": missing.Load(),
	}).Info("images_copied")
	return nil
}

func readResource(ctx context.Context, env *pipeline.Env, resID string) ([]byte, error) {
	leaf, err := env.Resources.Download(ctx, resID)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(leaf.LocalPath)
}

// statusError 是图片服务返回的非 200 状态。
type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("image service returned HTTP %d", e.code) }

func fetchImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
