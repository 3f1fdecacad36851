package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/bundle"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/cache"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/logging"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/pipeline"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/resource"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/server"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/version"

	_ "github.com/Embers-of-the-Fire/EVE-MultiTools/internal/stages/image"
	_ "github.com/Embers-of-the-Fire/EVE-MultiTools/internal/stages/localization"
	_ "github.com/Embers-of-the-Fire/EVE-MultiTools/internal/stages/static"
	_ "github.com/Embers-of-the-Fire/EVE-MultiTools/internal/stages/universe"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath    string
	workspacePath string
	skip          []string
	checkOnly     bool
	cleanCache    bool
	cleanBundle   bool
	serve         bool
	showVersion   bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// printVersion 输出注入的版本 + 提交信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}
	if opts.workspacePath != "" {
		abs, err := filepath.Abs(opts.workspacePath)
		if err != nil {
			fmt.Fprintf(stdErr, "无法解析工作区路径: %v\n", err)
			return 1
		}
		cfg.Global.WorkspacePath = abs
	}
	cfg.Global.Skip = append(cfg.Global.Skip, opts.skip...)

	logger, sink, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := sink.Close(); err != nil {
			fmt.Fprintf(stdErr, "关闭日志失败: %v\n", err)
		}
	}()

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["workspace"] = cfg.Global.WorkspacePath
		fields["skip"] = cfg.Global.Skip
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ws, err := config.LoadWorkspace(cfg.Global.WorkspacePath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载工作区失败: %v\n", err)
		return 1
	}
	srv := ws.Metadata.Server

	if opts.cleanCache || opts.cleanBundle {
		var paths []string
		if opts.cleanCache {
			paths = append(paths, cfg.ServerCacheDir(srv))
		}
		if opts.cleanBundle {
			paths = append(paths, cfg.BundleDir(srv), cfg.BundleFile(srv))
		}
		if err := bundle.Clean(logger, paths...); err != nil {
			fmt.Fprintf(stdErr, "清理失败: %v\n", err)
			return 1
		}
		return 0
	}

	// 启动顺序：配置 → 工作区 → 资源索引树 → 磁盘缓存 → Fetcher → 资源缓存，
	// 生成与 serve 模式共享同一份资源缓存。
	resources, err := buildResources(cfg, ws, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化资源缓存失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["server"] = srv
	fields["resources"] = resources.Tree().Len()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.serve {
		if err := startHTTPServer(ctx, cfg, srv, resources, logger); err != nil {
			fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
			return 1
		}
		return 0
	}

	if err := generate(ctx, cfg, ws, resources, logger); err != nil {
		fmt.Fprintf(stdErr, "生成失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("eve-bundle", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	var configFlag string

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./bundle.toml，可被 EVE_BUNDLE_CONFIG 覆盖）")
	fs.StringVar(&opts.workspacePath, "workspace", "", "工作区目录，覆盖配置中的 WorkspacePath")
	fs.StringSliceVar(&opts.skip, "skip", nil, "跳过的阶段，逗号分隔")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.cleanCache, "clean-cache", false, "删除当前服务器的全部缓存后退出")
	fs.BoolVar(&opts.cleanBundle, "clean-bundle", false, "删除 bundle 目录与产物后退出")
	fs.BoolVar(&opts.serve, "serve", false, "以 HTTP 服务方式提供资源缓存")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if opts.serve && (opts.cleanCache || opts.cleanBundle) {
		return cliOptions{}, errors.New("--serve 不能与 --clean-cache/--clean-bundle 同时使用")
	}

	path := os.Getenv("EVE_BUNDLE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "bundle.toml"
	}
	opts.configPath = path

	return opts, nil
}

func buildResources(cfg *config.Config, ws *config.Workspace, logger *logrus.Logger) (*resource.Cache, error) {
	store, err := cache.NewStore(nil, cfg.ResourceCacheDir(ws.Metadata.Server))
	if err != nil {
		return nil, err
	}
	tree, err := resource.LoadTree(ws.IndexPath, store.Root(), logger)
	if err != nil {
		return nil, err
	}

	g := cfg.Global
	fetcher := resource.NewFetcher(server.NewUpstreamClient(cfg), store,
		resource.WithGate(resource.NewGate(int64(g.MaxConcurrency))),
		resource.WithRetryPolicy(resource.RetryPolicy{
			MaxAttempts:    g.MaxAttempts,
			InitialBackoff: g.InitialBackoff.DurationValue(),
			MaxBackoff:     g.MaxBackoff.DurationValue(),
		}),
		resource.WithVerifyOnHit(g.VerifyOnHit),
		resource.WithLogger(logger),
	)
	format := resource.TemplateFormatter(ws.Metadata.ResourceService, "resources")
	return resource.NewCache(tree, fetcher, format, logger), nil
}

// generate 写入 bundle 级文件，运行全部阶段，全部成功后打包。
func generate(ctx context.Context, cfg *config.Config, ws *config.Workspace, resources pipeline.Resources, logger *logrus.Logger) error {
	srv := ws.Metadata.Server
	runID := uuid.NewString()
	runLogger := logger.WithFields(logging.RunFields(runID, srv))
	started := time.Now()
	runLogger.Info("generation_started")

	bundleRoot := cfg.BundleDir(srv)
	if err := os.MkdirAll(bundleRoot, 0o755); err != nil {
		return err
	}
	if err := bundle.WriteDescriptor(logger, bundleRoot, bundle.NewDescriptor(ws, runID, started)); err != nil {
		return fmt.Errorf("写入 bundle 描述失败: %w", err)
	}
	if err := bundle.WriteConfigs(logger, bundleRoot, ws); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	env := &pipeline.Env{
		BundleRoot: bundleRoot,
		FSD:        pipeline.NewFSD(ws.FSDPath),
		Resources:  resources,
		Workspace:  ws,
		Logger:     logger,
		RunID:      runID,
		HTTP:       server.NewUpstreamClient(cfg),
		Policy:     cfg.PolicyFor,
	}
	gen, err := pipeline.NewGenerator(env, cfg.SkipSet())
	if err != nil {
		return err
	}
	if err := gen.Run(ctx); err != nil {
		runLogger.WithError(err).Error("generation_failed")
		return err
	}

	files, err := bundle.Package(ctx, logger, bundleRoot, cfg.BundleFile(srv))
	if err != nil {
		return fmt.Errorf("打包失败: %w", err)
	}
	runLogger.WithFields(logrus.Fields{
		"stages":  gen.Stages(),
		"files":   files,
		"bundle":  cfg.BundleFile(srv),
		"elapsed": time.Since(started).String(),
	}).Info("generation_finished")
	return nil
}

func startHTTPServer(ctx context.Context, cfg *config.Config, srv string, resources *resource.Cache, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Resources:  resources,
		Server:     srv,
		ListenPort: port,
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
