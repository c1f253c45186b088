package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/habits/internal/config"
	"github.com/templui/habits/internal/db"
	"github.com/templui/habits/internal/repository"
	"github.com/templui/habits/internal/service"
)

type App struct {
	Cfg          *config.Config
	DB           *sqlx.DB
	AuthService  *service.AuthService
	DataService  *service.DataService
	EmailService *service.EmailService
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database and run migrations
	database, err := db.Open(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	refreshTokenRepository := repository.NewRefreshTokenRepository(database)
	tableRepository := repository.NewTableRepository(database)

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	authService := service.NewAuthService(
		userRepository,
		refreshTokenRepository,
		emailService,
		cfg.JWTSecret,
		cfg.JWTExpiry,
		cfg.RefreshTokenExpiry,
	)
	dataService := service.NewDataService(tableRepository)

	return &App{
		Cfg:          cfg,
		DB:           database,
		AuthService:  authService,
		DataService:  dataService,
		EmailService: emailService,
	}, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return db.Close(a.DB)
	}
	return nil
}
