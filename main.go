package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/redis/v3"
	"github.com/khanghh/tenantauth/internal/accounts"
	"github.com/khanghh/tenantauth/internal/audit"
	"github.com/khanghh/tenantauth/internal/auth"
	"github.com/khanghh/tenantauth/internal/common"
	"github.com/khanghh/tenantauth/internal/config"
	"github.com/khanghh/tenantauth/internal/handlers/api"
	"github.com/khanghh/tenantauth/internal/identity"
	"github.com/khanghh/tenantauth/internal/mail"
	"github.com/khanghh/tenantauth/internal/metrics"
	"github.com/khanghh/tenantauth/internal/middlewares"
	"github.com/khanghh/tenantauth/internal/rbac"
	"github.com/khanghh/tenantauth/internal/store"
	"github.com/khanghh/tenantauth/internal/tenants"
	"github.com/khanghh/tenantauth/internal/tokens"
	"github.com/khanghh/tenantauth/model"
	"github.com/khanghh/tenantauth/params"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
	gitTag    string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "tenantauth - multi-tenant authentication and authorization server"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API server",
			Action: run,
		},
		{
			Name:   "migrate",
			Usage:  "Create or update the database schema",
			Action: migrate,
		},
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
		tenantCommand,
		accountCommand,
		roleCommand,
		permissionCommand,
		auditCommand,
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustLoadConfig(ctx *cli.Context) *config.Config {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		os.Exit(1)
	}
	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))
	return cfg
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	replicas := make([]gorm.Dialector, 0, len(dbConfig.Replicas))
	for _, dsn := range dbConfig.Replicas {
		replicas = append(replicas, mysql.Open(dsn))
	}
	resolver := dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   dbresolver.RandomPolicy{},
	})
	if dbConfig.MaxIdleConns > 0 {
		resolver = resolver.SetMaxIdleConns(dbConfig.MaxIdleConns)
	}
	if dbConfig.MaxOpenConns > 0 {
		resolver = resolver.SetMaxOpenConns(dbConfig.MaxOpenConns)
	}
	if dbConfig.ConnMaxIdleTime > 0 {
		resolver = resolver.SetConnMaxIdleTime(time.Duration(dbConfig.ConnMaxIdleTime) * time.Second)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		resolver = resolver.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
	}
	if err := db.Use(resolver); err != nil {
		slog.Error("Failed to register database replicas", "error", err)
		os.Exit(1)
	}
	return db
}

func mustMigrateDatabase(db *gorm.DB) {
	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	if redisCfg.URL == "" {
		return nil
	}
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func mustInitMailSender(mailCfg config.MailConfig) mail.MailSender {
	switch mailCfg.Backend {
	case "":
		slog.Warn("No mail backend configured, operator alerts are disabled")
		return mail.NullMailSender{}
	case "smtp":
		smtpCfg := mailCfg.SMTP
		return mail.NewSMTPMailSender(mail.SMTPConfig{
			Host:     smtpCfg.Host,
			Port:     smtpCfg.Port,
			Username: smtpCfg.Username,
			Password: smtpCfg.Password,
			TLS:      smtpCfg.TLS,
		}, smtpCfg.From)
	}
	slog.Error("Unsupported mail sender backend", "backend", mailCfg.Backend)
	os.Exit(1)
	return nil
}

func mustInitPermissionCache(rbacCfg config.RBACConfig, redisStorage *redis.Storage) rbac.PermissionCache {
	if rbacCfg.CacheTTL < 0 {
		return nil
	}
	if redisStorage != nil {
		return rbac.NewStorePermissionCache(store.NewRedisStorage(redisStorage.Conn()), params.PermissionKeyPrefix, rbacCfg.CacheTTL)
	}
	return rbac.NewLRUPermissionCache(rbacCfg.CacheSize, rbacCfg.CacheTTL)
}

// services groups the domain services shared by the server and the
// administrative commands.
type services struct {
	tenants     *tenants.TenantService
	accounts    *accounts.AccountService
	credentials *accounts.CredentialStore
	roles       *rbac.RoleService
	resolver    *rbac.Resolver
	revoker     *tokens.Revoker
	auditRepo   audit.LoginAuditRepository
}

func newServices(cfg *config.Config, db *gorm.DB, cache rbac.PermissionCache) *services {
	var (
		tenantRepo  = tenants.NewTenantRepository(db)
		accountRepo = accounts.NewAccountRepository(db)
		rbacRepo    = rbac.NewRepository(db)
		refreshRepo = tokens.NewRefreshTokenRepository(db)
	)
	revoker := tokens.NewRevoker(refreshRepo)
	resolver := rbac.NewResolver(rbacRepo, cache)
	return &services{
		tenants:  tenants.NewTenantService(tenantRepo, revoker),
		accounts: accounts.NewAccountService(accountRepo, revoker, cfg.Security.MinPasswordLength),
		credentials: accounts.NewCredentialStore(accountRepo, accounts.LockoutPolicy{
			Threshold: cfg.Security.LockoutThreshold,
			Duration:  cfg.Security.LockoutDuration,
		}),
		roles:     rbac.NewRoleService(rbacRepo, resolver),
		resolver:  resolver,
		revoker:   revoker,
		auditRepo: audit.NewLoginAuditRepository(db),
	}
}

func setupAPIRoutes(router fiber.Router, cfg *config.Config, authService *auth.Service, signer *tokens.Signer, limiterStorage fiber.Storage) {
	authHandler := api.NewAuthHandler(authService)
	loginLimiter := middlewares.LoginRateLimit(cfg.RateLimit.Max, cfg.RateLimit.Window, limiterStorage)
	api.SetupAuthRoutes(router.Group("/api/v1/auth"), authHandler, middlewares.RequireAuth(signer), loginLimiter)
}

func run(ctx *cli.Context) error {
	cfg := mustLoadConfig(ctx)
	metrics.Register()

	db := mustInitDatabase(cfg.MySQL)
	mustMigrateDatabase(db)
	redisStorage := mustInitRedisStorage(cfg.Redis)
	var limiterStorage fiber.Storage = memory.New()
	if redisStorage != nil {
		limiterStorage = redisStorage
	}

	svc := newServices(cfg, db, mustInitPermissionCache(cfg.RBAC, redisStorage))
	notifier := mail.NewAlertNotifier(mustInitMailSender(cfg.Mail), cfg.Mail.AlertEmail)

	httpClient := &http.Client{Timeout: params.ProviderVerifyTimeout}
	providers, err := identity.NewRegistry(ctx.Context, cfg.Providers, httpClient)
	if err != nil {
		slog.Error("Failed to initialize identity providers", "error", err)
		return err
	}

	signer := tokens.NewSigner(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.AccessTokenTTL)
	issuer := tokens.NewIssuer(
		signer,
		tokens.NewRefreshTokenRepository(db),
		auth.NewSubjectLoader(svc.tenants, svc.accounts, svc.resolver),
		notifier,
		tokens.IssuerOptions{
			RefreshTokenTTL:     cfg.Security.RefreshTokenTTL,
			RevokeFamilyOnReuse: *cfg.Security.RevokeFamilyOnReuse,
		},
	)
	authService := auth.NewService(auth.ServiceOptions{
		Tenants:     svc.tenants,
		Credentials: svc.credentials,
		Accounts:    svc.accounts,
		Verifier:    providers,
		Linker:      identity.NewLinker(identity.NewLinkRepository(db), svc.accounts),
		Permissions: svc.resolver,
		Issuer:      issuer,
		Recorder:    audit.NewRecorder(svc.auditRepo),
		Notifier:    notifier,
	})

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	router.Use(middlewares.RequestMetrics())
	setupAPIRoutes(router, cfg, authService, signer, limiterStorage)

	var rdb goredis.UniversalClient
	if redisStorage != nil {
		rdb = redisStorage.Conn()
	}
	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, params.HealthCheckServerAddr, common.NewHealthCheckHandler(db, rdb, metrics.Handler()))
	defer func() {
		term()
		<-done
		shutdownCtx, cancel := context.WithTimeout(context.Background(), params.AlertSendTimeout)
		defer cancel()
		notifier.Wait(shutdownCtx)
		if redisStorage != nil {
			redisStorage.Close()
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("Shutting down server")
		router.ShutdownWithTimeout(params.ServerIdleTimeout)
	}()

	slog.Info("Starting server", "addr", cfg.ListenAddr, "version", params.VersionWithCommit(gitCommit, gitDate), "providers", providers.Providers())
	return router.Listen(cfg.ListenAddr)
}

func migrate(ctx *cli.Context) error {
	cfg := mustLoadConfig(ctx)
	db := mustInitDatabase(cfg.MySQL)
	mustMigrateDatabase(db)
	slog.Info("Database schema is up to date")
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
