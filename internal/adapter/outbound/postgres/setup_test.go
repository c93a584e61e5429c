package postgres

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/shared/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the in-memory database alive across calls.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestPlan(name string, sortOrder int) *model.SubscriptionPlan {
	return &model.SubscriptionPlan{
		ID:               uuid.New(),
		Name:             name,
		Prices:           datatypes.NewJSONType(model.PriceMap{"USD": decimal.NewFromInt(30)}),
		BillingFrequency: model.BillingFrequencyMonthly,
		Duration:         1,
		DurationUnit:     model.DurationUnitMonth,
		MaxGyms:          1,
		MaxClientsPerGym: 100,
		MaxUsersPerGym:   5,
		IsActive:         true,
		IsPublic:         true,
		SortOrder:        sortOrder,
		Version:          1,
	}
}

func newTestSubscription(orgID, planID uuid.UUID, status model.SubscriptionStatus, end time.Time) *model.OrganizationSubscription {
	return &model.OrganizationSubscription{
		OrganizationID:     orgID,
		SubscriptionPlanID: planID,
		Status:             status,
		Currency:           "USD",
		SubscriptionStart:  end.AddDate(0, -1, 0),
		SubscriptionEnd:    end,
		Version:            1,
	}
}
