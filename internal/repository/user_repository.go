package repository

import (
	"time"

	"lms_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var u model.User
	err := r.DB.First(&u, id).Error
	return &u, err
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var u model.User
	err := r.DB.Where("email = ?", email).First(&u).Error
	return &u, err
}

func (r *UserRepository) Create(u *model.User) error {
	return r.DB.Create(u).Error
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	now := time.Now()
	return r.DB.Model(&model.User{}).Where("id = ?", userID).Update("last_seen", now).Error
}

// ListReviewerCandidates 可参与审批的候选池：启用状态的 reviewer 与 admin
func (r *UserRepository) ListReviewerCandidates() ([]model.User, error) {
	var users []model.User
	err := r.DB.Where("role IN ? AND is_active = ?", []model.UserRole{model.Reviewer, model.Admin}, true).
		Order("id asc").
		Find(&users).Error
	return users, err
}
