package repository

import (
	"errors"

	"lms_backend/internal/model"
	"lms_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EvaluationRepository struct {
	DB *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{DB: db}
}

func (r *EvaluationRepository) FindByID(id string) (*model.CourseEvaluation, error) {
	var ev model.CourseEvaluation
	err := r.DB.Preload("Course").First(&ev, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrEvaluationNotFound
	}
	return &ev, err
}

// CreateGuarded 在一个事务内完成重复提交检查与创建：
// 锁定课程行使同一课程的并发提交串行化，存在非终态评估时拒绝新提交。
func (r *EvaluationRepository) CreateGuarded(ev *model.CourseEvaluation, markCourse func(tx *gorm.DB) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var course model.Course
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&course, ev.CourseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrCourseNotFound
			}
			return err
		}

		var inFlight int64
		if err := tx.Model(&model.CourseEvaluation{}).
			Where("course_id = ? AND status IN ?", ev.CourseID, model.NonTerminalEvaluationStatuses).
			Count(&inFlight).Error; err != nil {
			return err
		}
		if inFlight > 0 {
			return util.ErrDuplicateSubmission
		}

		if err := tx.Create(ev).Error; err != nil {
			return err
		}
		return markCourse(tx)
	})
}

// UpdateLocked 对单条评估的读-改-写在行锁下串行化执行
func (r *EvaluationRepository) UpdateLocked(id string, fn func(tx *gorm.DB, ev *model.CourseEvaluation) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var ev model.CourseEvaluation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ev, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrEvaluationNotFound
			}
			return err
		}
		if err := fn(tx, &ev); err != nil {
			return err
		}
		return tx.Save(&ev).Error
	})
}

func (r *EvaluationRepository) ListByStatus(status model.EvaluationStatus, page, limit int) ([]model.CourseEvaluation, int64, error) {
	var evs []model.CourseEvaluation
	var total int64

	query := r.DB.Model(&model.CourseEvaluation{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Preload("Course").
		Order("submitted_at desc").
		Offset(offset).Limit(limit).
		Find(&evs).Error
	return evs, total, err
}

// FindLatestByCourse 最近一次提交尝试（含终态）
func (r *EvaluationRepository) FindLatestByCourse(courseID uint) (*model.CourseEvaluation, error) {
	var ev model.CourseEvaluation
	err := r.DB.Where("course_id = ?", courseID).
		Order("submitted_at desc").
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrEvaluationNotFound
	}
	return &ev, err
}

func (r *EvaluationRepository) CountByStatus() (map[model.EvaluationStatus]int64, error) {
	type row struct {
		Status model.EvaluationStatus
		Count  int64
	}
	var rows []row
	err := r.DB.Model(&model.CourseEvaluation{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.EvaluationStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
