package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/audit"
	auditPostgres "github.com/frahmantamala/dashboard-management/internal/audit/postgres"
	"github.com/frahmantamala/dashboard-management/internal/auth"
	authPostgres "github.com/frahmantamala/dashboard-management/internal/auth/postgres"
	"github.com/frahmantamala/dashboard-management/internal/core/database"
	"github.com/frahmantamala/dashboard-management/internal/core/events"
	"github.com/frahmantamala/dashboard-management/internal/gate"
	"github.com/frahmantamala/dashboard-management/internal/rbac"
	rbacPostgres "github.com/frahmantamala/dashboard-management/internal/rbac/postgres"
	"github.com/frahmantamala/dashboard-management/internal/token"
	tokenPostgres "github.com/frahmantamala/dashboard-management/internal/token/postgres"
	"github.com/frahmantamala/dashboard-management/internal/transport/rest"
	"github.com/frahmantamala/dashboard-management/internal/user"
	userPostgres "github.com/frahmantamala/dashboard-management/internal/user/postgres"
	"github.com/frahmantamala/dashboard-management/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Router *chi.Mux
	Bus    *events.EventBus
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		// Let in-flight async audit writes land before the pool closes.
		deps.Bus.Wait()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	bus := events.NewEventBus(log)
	txManager := database.NewTxManager(gormDB)

	auditStore := auditPostgres.NewAuditStore(gormDB)
	recorder := audit.NewRecorder(auditStore, bus, log)
	auditHandler := audit.NewHandler(recorder)

	rbacStore := rbacPostgres.NewRbacStore(gormDB)
	resolver := rbac.NewResolver(rbacStore)
	rbacService := rbac.NewService(rbacStore, txManager, recorder, log)
	rbacHandler := rbac.NewHandler(rbacService)

	userRepo := userPostgres.NewUserStore(gormDB)

	sessionStore := tokenPostgres.NewSessionStore(gormDB)
	subjects := &subjectProvider{users: userRepo, resolver: resolver}
	tokenService := token.NewService(sessionStore, subjects, txManager, recorder, log,
		config.Security.JWTSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration)

	credentialStore := authPostgres.NewCredentialStore(gormDB)
	authService := auth.NewService(credentialStore, resolver, tokenService, txManager, recorder, log,
		config.Security.MaxFailedLogins, config.Security.LockoutDuration)
	authHandler := auth.NewHandler(authService)

	userService := user.NewService(userRepo, rbacService, resolver, tokenService, txManager, recorder, log)
	userHandler := user.NewHandler(userService)

	accessGate := gate.NewGate(tokenService, resolver, recorder, log)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, accessGate, authHandler, userHandler,
		rbacHandler, auditHandler, config.Security.LoginRatePerMinute, log)

	return &Dependencies{
		Config: config,
		DB:     db,
		Router: router,
		Bus:    bus,
		Logger: log,
	}, nil
}

// subjectProvider resolves the subject embedded in freshly issued access
// tokens. Rotation consults it so a deactivated account cannot keep minting
// tokens, and admin changes show up on the next refresh.
type subjectProvider struct {
	users    user.Repository
	resolver *rbac.Resolver
}

func (p *subjectProvider) SubjectByID(ctx context.Context, userID int64) (*token.Subject, error) {
	model, err := p.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	if !model.IsActive {
		return nil, internal.ErrAccountInactive
	}

	isAdmin, err := p.resolver.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &token.Subject{
		UserID:   model.ID,
		Username: model.Username,
		IsAdmin:  isAdmin,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
