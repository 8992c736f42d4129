package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/likegate/internal/bot"
	"github.com/xxxsen/likegate/internal/config"
	"github.com/xxxsen/likegate/internal/db"
	"github.com/xxxsen/likegate/internal/handler"
	"github.com/xxxsen/likegate/internal/job"
	"github.com/xxxsen/likegate/internal/likeapi"
	"github.com/xxxsen/likegate/internal/middleware"
	"github.com/xxxsen/likegate/internal/pkg/jwt"
	"github.com/xxxsen/likegate/internal/repo"
	"github.com/xxxsen/likegate/internal/schedule"
	"github.com/xxxsen/likegate/internal/service"
	"github.com/xxxsen/likegate/internal/shortener"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "likegate",
		Short: "verification-gated like bot",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run bot and verification server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	var adminID int64
	var ttlHours int
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue an admin api token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if !cfg.IsAdmin(adminID) {
				return fmt.Errorf("user %d is not listed in admin_ids", adminID)
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is not configured")
			}
			token, err := jwt.GenerateToken(adminID, []byte(cfg.JWTSecret), time.Duration(ttlHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")
	tokenCmd.Flags().Int64Var(&adminID, "admin-id", 0, "telegram user id of the admin")
	tokenCmd.Flags().IntVar(&ttlHours, "ttl-hours", 24, "token lifetime in hours")

	rootCmd.AddCommand(runCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

type stores struct {
	conn          *sql.DB
	verifications service.VerificationStore
	profiles      service.ProfileStore
	purge         *job.VerificationPurgeJob
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Database.Type == "memory" {
		logutil.GetLogger(context.Background()).Warn("using in-memory store, data is lost on restart")
		verifications := repo.NewMemVerificationRepo()
		return &stores{
			verifications: verifications,
			profiles:      repo.NewMemProfileRepo(),
			purge:         job.NewVerificationPurgeJob(verifications, cfg.Verification.Retention()),
		}, nil
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	verifications := repo.NewVerificationRepo(conn)
	return &stores{
		conn:          conn,
		verifications: verifications,
		profiles:      repo.NewProfileRepo(conn),
		purge:         job.NewVerificationPurgeJob(verifications, cfg.Verification.Retention()),
	}, nil
}

func runServer(cfg *config.Config) error {
	log := logutil.GetLogger(context.Background())
	log.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("store", cfg.Database.Type),
		zap.String("public_url", cfg.PublicURL),
	)

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	if st.conn != nil {
		defer func() { _ = st.conn.Close() }()
	}

	likeClient := likeapi.NewClient(cfg.LikeAPI.URL, cfg.LikeAPI.Timeout(), cfg.PlayerInfoAPI.URL, cfg.PlayerInfoAPI.Timeout())
	var players likeapi.PlayerLookup
	if cfg.PlayerInfoAPI.URL != "" {
		players = likeapi.WrapLruCacheToPlayerLookup(likeClient, cfg.PlayerInfoAPI.CacheSize,
			time.Duration(cfg.PlayerInfoAPI.CacheTTLMinutes)*time.Minute)
	}
	var short service.Shortener
	if cfg.Shortener.URL != "" {
		short = shortener.New(cfg.Shortener.URL, cfg.Shortener.Timeout())
	}

	var api *tgbotapi.BotAPI
	var notifier service.Notifier
	if cfg.Telegram.Token != "" {
		api, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		api.Debug = cfg.Telegram.Debug
		if api.Debug {
			log.Warn("telegram debug enabled, raw updates including /start codes will be logged")
		}
		notifier = bot.NewNotifier(api)
		log.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	} else {
		log.Warn("telegram.token not set, bot disabled")
	}

	links := service.NewLinkService(st.verifications, short, cfg.PublicURL, cfg.Verification.CodeTTL())
	verifier := service.NewVerificationService(st.verifications)
	privileges := service.NewPrivilegeService(st.profiles, cfg.AdminIDs)
	likes := service.NewLikeService(service.LikeServiceDeps{
		Verifications:  st.verifications,
		Profiles:       st.profiles,
		Links:          links,
		Policy:         service.NewPolicy(cfg.Verification.Cooldown(), cfg.Verification.FreshnessGrace()),
		Likes:          likeClient,
		Players:        players,
		Notifier:       notifier,
		HowToVerifyURL: cfg.HowToVerifyURL,
		VIPAccessURL:   cfg.VIPAccessURL,
	})

	var pinger handler.Pinger
	if st.conn != nil {
		pinger = st.conn
	}
	deps := handler.RouterDeps{
		Verify:       handler.NewVerifyHandler(verifier),
		Admin:        handler.NewAdminHandler(privileges),
		Health:       handler.NewHealthHandler(pinger),
		JWTSecret:    []byte(cfg.JWTSecret),
		VerifyWindow: time.Duration(cfg.RateLimit.VerifyWindowSeconds) * time.Second,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler(schedule.WithRunOnStart(), schedule.WithJobTimeout(5*time.Minute))
	if err := scheduler.AddJob(st.purge, cfg.Verification.PurgeCron); err != nil {
		return fmt.Errorf("schedule purge job: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	botDone := make(chan struct{})
	if api != nil {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Telegram.PollTimeout
		updates := api.GetUpdatesChan(u)
		b := bot.New(bot.Deps{
			Sender:         api,
			Likes:          likes,
			Verifier:       verifier,
			Privileges:     privileges,
			MaxConcurrency: cfg.Telegram.MaxConcurrency,
		})
		go func() {
			defer close(botDone)
			b.Run(ctx, updates)
		}()
	} else {
		close(botDone)
	}

	// served directly (not engine.Run) so the code can be lifted out of the path first
	server := &http.Server{
		Addr:              addr,
		Handler:           middleware.RedactVerifyCode(service.VerifyPathPrefix, engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()
	log.Info("http server listening", zap.String("addr", addr))

	<-ctx.Done()
	log.Info("server stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	if api != nil {
		api.StopReceivingUpdates()
	}
	<-botDone
	return nil
}
