package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/clip-cache/internal/cache"
	"github.com/any-hub/clip-cache/internal/config"
	"github.com/any-hub/clip-cache/internal/logging"
	"github.com/any-hub/clip-cache/internal/media"
	"github.com/any-hub/clip-cache/internal/origin"
	"github.com/any-hub/clip-cache/internal/server"
	"github.com/any-hub/clip-cache/internal/server/routes"
	"github.com/any-hub/clip-cache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

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

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origin"] = cfg.Origin.BaseURL
		fields["credentials"] = cfg.Origin.AuthMode()
		fields["storage_driver"] = cfg.Global.StorageDriver
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 日志 → 缓存适配器 → 回源客户端 → 媒体服务 → Fiber server，
	// 所有请求共享同一份缓存与 http.Client。
	svc, err := buildService(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化媒体服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["origin"] = cfg.Origin.BaseURL
	fields["listen_port"] = cfg.Global.ListenPort
	fields["credentials"] = cfg.Origin.AuthMode()
	fields["storage_driver"] = cfg.Global.StorageDriver
	fields["capacity_bytes"] = cfg.Global.CacheCapacity
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, svc, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildService 组装缓存适配器、回源客户端与媒体编排服务。存储在首次访问时才打开。
func buildService(cfg *config.Config, logger *logrus.Logger) (*media.Service, error) {
	resolver, err := origin.NewResolver(cfg.Origin.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := origin.NewUpstreamClient(cfg)
	fetcher := origin.NewHTTPFetcher(httpClient, origin.FetcherOptions{
		MaxRetries:     retriesOrDisabled(cfg.Global.MaxRetries),
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
	})

	opener := cache.OpenerFor(cache.StoreOptions{
		Driver:  cfg.Global.StorageDriver,
		Path:    cfg.Global.StoragePath,
		Name:    cfg.Global.StoreName,
		Version: cfg.Global.StoreVersion,
	})

	return media.New(media.Options{
		Config:   media.ConfigFromGlobal(cfg.Global),
		Opener:   opener,
		Fetcher:  fetcher,
		Resolver: resolver,
		Logger:   logger,
	})
}

// retriesOrDisabled 把配置中的 0 次重试映射为 fetcher 的“禁用重试”。
func retriesOrDisabled(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("clip-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 CLIP_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("CLIP_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, svc *media.Service, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Service:    svc,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterCacheRoutes(app, svc)
	routes.RegisterVersionRoute(app)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
