package dao

import (
	"context"
	"errors"
	"runonsave/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingDAO interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	SaveSetting(ctx context.Context, setting *models.Setting) error
}

type settingDAO struct {
	db *gorm.DB
}

func NewSettingDAO(db *gorm.DB) SettingDAO {
	return &settingDAO{db: db}
}

// GetSetting returns nil, nil when the key has never been saved
func (dao *settingDAO) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := dao.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (dao *settingDAO) SaveSetting(ctx context.Context, setting *models.Setting) error {
	return dao.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(setting).Error
}
