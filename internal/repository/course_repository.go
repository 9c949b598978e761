package repository

import (
	"errors"
	"time"

	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) FindByID(id uint) (*model.Course, error) {
	var c model.Course
	err := r.DB.First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCourseNotFound
	}
	return &c, err
}

func (r *CourseRepository) UpdateStatus(courseID uint, status model.CourseStatus) error {
	return r.DB.Model(&model.Course{}).Where("id = ?", courseID).
		Update("status", status).Error
}

// MarkCourseSubmitted 提交时间与状态一并写入；在提交建档事务内调用
func MarkCourseSubmitted(tx *gorm.DB, courseID uint, at time.Time) error {
	return tx.Model(&model.Course{}).Where("id = ?", courseID).
		Updates(map[string]interface{}{
			"status":       model.CourseSubmitted,
			"submitted_at": at,
		}).Error
}

// MarkPublished 审批通过后上架课程
func (r *CourseRepository) MarkPublished(courseID uint, at time.Time) error {
	return r.DB.Model(&model.Course{}).Where("id = ?", courseID).
		Updates(map[string]interface{}{
			"status":       model.CourseApproved,
			"is_published": true,
			"published_at": at,
		}).Error
}
