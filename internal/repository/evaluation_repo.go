package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-autograder/internal/models"
)

// EvaluationQuery filters the evaluation listing.
type EvaluationQuery struct {
	StudentID  uint
	Status     string
	Assignment string
	Offset     int
	Limit      int
}

// EvaluationRepository exposes persistence operations for evaluations.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	GetByID(ctx context.Context, id uint) (models.Evaluation, error)
	GetByReference(ctx context.Context, reference string) (models.Evaluation, error)
	List(ctx context.Context, query EvaluationQuery) ([]models.Evaluation, int64, error)
}

// NewEvaluationRepository constructs an evaluation repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

type evaluationRepository struct {
	db *gorm.DB
}

// Create stores the evaluation together with its reports.
func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Create(evaluation).Error
}

func (r *evaluationRepository) GetByID(ctx context.Context, id uint) (models.Evaluation, error) {
	var evaluation models.Evaluation
	err := r.db.WithContext(ctx).
		Preload("Reports", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&evaluation, id).Error
	if err != nil {
		return models.Evaluation{}, err
	}
	return evaluation, nil
}

func (r *evaluationRepository) GetByReference(ctx context.Context, reference string) (models.Evaluation, error) {
	var evaluation models.Evaluation
	err := r.db.WithContext(ctx).
		Preload("Reports", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("reference = ?", reference).
		First(&evaluation).Error
	if err != nil {
		return models.Evaluation{}, err
	}
	return evaluation, nil
}

// List returns evaluations newest first without their source or reports.
func (r *evaluationRepository) List(ctx context.Context, query EvaluationQuery) ([]models.Evaluation, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Evaluation{})

	if query.StudentID != 0 {
		db = db.Where("student_id = ?", query.StudentID)
	}

	if query.Status != "" {
		db = db.Where("status = ?", strings.ToLower(query.Status))
	}

	if query.Assignment != "" {
		db = db.Where("LOWER(assignment) = ?", strings.ToLower(query.Assignment))
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}

	var evaluations []models.Evaluation
	if err := db.Omit("source").Order("created_at DESC").Order("id DESC").Find(&evaluations).Error; err != nil {
		return nil, 0, err
	}

	return evaluations, total, nil
}
