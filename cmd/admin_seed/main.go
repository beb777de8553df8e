// Package main seeds an operator account and the default wallet settings,
// then prints a bearer token for the operator.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"pontos/internal/app"
	"pontos/internal/config"
	apperrors "pontos/internal/errors"
	"pontos/internal/logger"
	"pontos/internal/models"
	"pontos/internal/money"
	"pontos/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

func main() {
	config.LoadEnv()

	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		log.Fatal("ADMIN_EMAIL must be set in environment")
	}
	adminID := config.GetEnv("ADMIN_ID", uuid.NewSHA1(uuid.NameSpaceOID, []byte(adminEmail)).String())
	tokenTTL, err := time.ParseDuration(config.GetEnv("ADMIN_TOKEN_TTL", "24h"))
	if err != nil {
		log.Fatalf("invalid ADMIN_TOKEN_TTL: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Store.Driver == app.DriverMemory {
		log.Fatal("seeding requires the postgres store")
	}
	zl := logger.Init(false, cfg.LogLevel)
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()
	engine, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to build engine", zap.Error(err))
	}
	defer engine.Close()

	if err := seedSettings(engine, cfg.Engine); err != nil {
		zl.Fatal("failed to seed settings", zap.Error(err))
	}

	_, err = engine.Repo.GetUser(ctx, adminID)
	switch {
	case err == nil:
		zl.Info("admin user already exists", zap.String("user_id", adminID))
	case errors.Is(err, apperrors.ErrUserNotFound):
		err = engine.Repo.CreateUser(ctx, &models.User{
			ID:        adminID,
			Name:      "Administrator",
			Email:     adminEmail,
			Role:      models.RoleAdmin,
			Status:    models.UserStatusActive,
			KYCStatus: models.KYCVerified,
		})
		if err != nil {
			zl.Fatal("failed to create admin user", zap.Error(err))
		}
		zl.Info("admin account created", zap.String("user_id", adminID))
	default:
		zl.Fatal("failed to look up admin user", zap.Error(err))
	}

	token, err := utils.IssueToken(cfg.JWT.Secret, models.UserClaims{UserID: adminID, Role: models.RoleAdmin}, tokenTTL)
	if err != nil {
		zl.Fatal("failed to issue admin token", zap.Error(err))
	}
	fmt.Println(token)
}

// seedSettings inserts the configured defaults as SystemSetting rows so that
// operators can tune them in the database. Existing rows are left untouched.
func seedSettings(engine *app.Engine, s config.EngineSettings) error {
	rows := []models.SystemSetting{
		{Key: config.KeyRiskScoreCeiling, Value: strconv.Itoa(s.RiskScoreCeiling)},
		{Key: config.KeyDailyLimitDefault, Value: minor(s.DailyLimitDefault)},
		{Key: config.KeyMonthlyLimitDefault, Value: minor(s.MonthlyLimitDefault)},
		{Key: config.KeyPerTxLimitDefault, Value: minor(s.PerTxLimitDefault)},
		{Key: config.KeyHardCeiling, Value: minor(s.HardCeiling)},
		{Key: config.KeyRefundWindow, Value: s.RefundWindow.String()},
		{Key: config.KeyPendingSLA, Value: s.PendingSLA.String()},
	}
	for t, lag := range s.LiquidationLag {
		rows = append(rows, models.SystemSetting{Key: config.KeyLiquidationLagPref + string(t), Value: lag.String()})
	}
	for i := range rows {
		rows[i].Category = config.SettingsCategory
	}
	return engine.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// Limits are stored as integer minor units.
func minor(a money.Amount) string {
	return strconv.FormatInt(a.Int64(), 10)
}
