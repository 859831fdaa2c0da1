package repository

import (
	"safetrain_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) Create(course *model.Course) error {
	return r.DB.Create(course).Error
}

func (r *CourseRepository) FindByID(id uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.First(&course, id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) ListByOwner(ownerID uint, page, pageSize int) ([]model.Course, int64, error) {
	var courses []model.Course
	var total int64

	query := r.DB.Model(&model.Course{}).Where("owner_id = ?", ownerID)
	query.Count(&total)

	offset := (page - 1) * pageSize
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&courses).Error; err != nil {
		return nil, 0, err
	}
	return courses, total, nil
}

// CreateVersion persists a published course version with its node and
// edge rows and bumps the course head, in one transaction.
func (r *CourseRepository) CreateVersion(version *model.CourseVersion) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return err
		}
		return tx.Model(&model.Course{}).
			Where("id = ?", version.CourseID).
			Update("published_version", version.Version).Error
	})
}

func (r *CourseRepository) FindVersion(courseID uint, version int) (*model.CourseVersion, error) {
	var cv model.CourseVersion
	err := r.DB.Preload("Nodes").Preload("Edges").
		Where("course_id = ? AND version = ?", courseID, version).
		First(&cv).Error
	if err != nil {
		return nil, err
	}
	return &cv, nil
}

func (r *CourseRepository) LatestVersion(courseID uint) (*model.CourseVersion, error) {
	var cv model.CourseVersion
	err := r.DB.Preload("Nodes").Preload("Edges").
		Where("course_id = ?", courseID).
		Order("version DESC").
		First(&cv).Error
	if err != nil {
		return nil, err
	}
	return &cv, nil
}
