package store

import (
	"context"
	"runonsave/internal/dao"
	"runonsave/internal/database"
	"runonsave/internal/models"
	apperrors "runonsave/pkg/errors"
	"strings"

	"gorm.io/gorm"
)

// PostgresStore keeps values in the settings table through gorm, so several
// machines can share one enabled flag.
type PostgresStore struct {
	db  *gorm.DB
	dao dao.SettingDAO
}

// OpenPostgresStore connects using dsn and migrates the schema
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, apperrors.NewConfigError("store.dsn", dsn, "postgres store requires a DSN")
	}
	db, err := database.Open(dsn)
	if err != nil {
		return nil, apperrors.NewStoreError(DriverPostgres, "", err)
	}
	return NewDAOStore(db, dao.NewSettingDAO(db)), nil
}

// NewDAOStore wraps an existing DAO. db may be nil when the caller owns the
// connection.
func NewDAOStore(db *gorm.DB, settings dao.SettingDAO) *PostgresStore {
	return &PostgresStore{db: db, dao: settings}
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	setting, err := p.dao.GetSetting(ctx, key)
	if err != nil {
		return "", false, apperrors.NewStoreError(DriverPostgres, key, err)
	}
	if setting == nil {
		return "", false, nil
	}
	return setting.Value, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, value string) error {
	if err := p.dao.SaveSetting(ctx, &models.Setting{Key: key, Value: value}); err != nil {
		return apperrors.NewStoreError(DriverPostgres, key, err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	if p.db == nil {
		return nil
	}
	return database.Close(p.db)
}
