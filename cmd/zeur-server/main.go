package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"zeur-core/internal/app"
	"zeur-core/internal/chain"
	"zeur-core/internal/handler"
	"zeur-core/internal/server"
	"zeur-core/internal/signer"
	"zeur-core/pkg/config"
	"zeur-core/pkg/logger"

	_ "zeur-core/docs/swagger"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

// @title ZEUR Lending API
// @version 1.0
// @description EUR lending client: market data, positions and transaction flows
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := &config.Global

	// 1. 初始化 Logger
	logger.Init(cfg.App.Env)
	defer logger.Sync()

	// 2. 加载钱包；没有配置时以只读模式运行
	var s chain.Signer
	ks, err := signer.FromConfig(cfg.Wallet)
	switch {
	case err == nil:
		s = ks
		logger.Info("钱包加载成功", zap.String("address", ks.Address().Hex()))
	case errors.Is(err, signer.ErrNoWallet):
		logger.Warn("未配置钱包，写接口不可用")
	default:
		logger.Fatal("钱包加载失败", zap.Error(err))
	}

	// 3. 组装核心服务
	core, err := app.Build(context.Background(), cfg, s)
	if err != nil {
		logger.Fatal("核心服务初始化失败", zap.Error(err))
	}
	defer core.Close()

	// 4. 预热市场数据，失败不影响启动
	if err := core.Market.Refetch(context.Background(), core.Gateway.Account()); err != nil {
		logger.Warn("市场数据预热失败", zap.Error(err))
	}

	// 5. HTTP Router
	tx := handler.NewTxHandler(core.Flows()...)
	lendingHandler := handler.NewLendingHandler(core.Market, core.Balances, core.Supply, core.Borrow, tx,
		core.Gateway.Account, cfg.Chain.ConfirmTimeout)
	healthHandler := handler.NewHealthHandler(version, core.Gateway.Account, core.Flows()...)
	r := server.NewHTTPRouter(server.Handlers{Health: healthHandler, Lending: lendingHandler, Tx: tx},
		server.NewRateLimiter(cfg.App.RateLimitPerMin, 3))

	// 6. 启动应用
	application, err := server.New(server.Config{
		HttpPort: cfg.App.HttpPort,
		GrpcPort: cfg.App.GrpcPort,
		ReadOnly: s == nil,
	}, r)
	if err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}

	// 运行 (阻塞到 SIGINT / SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := application.Run(ctx); err != nil {
		logger.Error("服务异常退出", zap.Error(err))
	}
	logger.Info("系统已退出")
}
