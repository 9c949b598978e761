package repository

import (
	"errors"

	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type SettingsRepository struct {
	DB *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{DB: db}
}

// Get 返回单行平台设置；不存在时用调用方给出的默认值建行
func (r *SettingsRepository) Get(defaults *model.PlatformSettings) (*model.PlatformSettings, error) {
	var s model.PlatformSettings
	err := r.DB.First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.DB.Create(defaults).Error; err != nil {
			return nil, err
		}
		return defaults, nil
	}
	return &s, err
}

func (r *SettingsRepository) Update(s *model.PlatformSettings) error {
	return r.DB.Save(s).Error
}
