package repository

import (
	"context"
	"errors"

	"gamewallet/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get 配置行不存在时返回 nil
func (r *SettingRepository) Get(ctx context.Context) (*model.Setting, error) {
	var s model.Setting
	err := r.db.WithContext(ctx).Where("id = ?", model.SettingID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Save 全字段写入，布尔 false 也会落库
func (r *SettingRepository) Save(ctx context.Context, s *model.Setting) error {
	s.ID = model.SettingID
	return r.db.WithContext(ctx).
		Select("*").
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(s).Error
}
