package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/studiofoundry/backstage/internal/domain"
	"github.com/studiofoundry/backstage/internal/infrastructure/database/models"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(ctx context.Context, profile domain.Profile) error {
	row := models.Profile{
		ID:     profile.ID,
		Email:  profile.Email,
		Role:   profile.Role,
		Status: profile.Status,
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ConflictError{Resource: "profile " + profile.ID}
	}
	return err
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (domain.Profile, error) {
	var row models.Profile
	err := r.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Profile{}, domain.NotFoundError{Resource: "profile " + id}
		}
		return domain.Profile{}, err
	}
	return domain.Profile{
		ID:     row.ID,
		Email:  row.Email,
		Role:   row.Role,
		Status: row.Status,
		CDate:  row.CDate,
	}, nil
}

// Delete treats a missing row as success so deprovisioning can be
// retried blindly.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Profile{}, "id = ?", id).Error
}

func (r *ProfileRepository) List(ctx context.Context) ([]domain.Profile, error) {
	var rows []models.Profile
	if err := r.db.WithContext(ctx).Order("c_date").Find(&rows).Error; err != nil {
		return nil, err
	}

	profiles := make([]domain.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, domain.Profile{
			ID:     row.ID,
			Email:  row.Email,
			Role:   row.Role,
			Status: row.Status,
			CDate:  row.CDate,
		})
	}
	return profiles, nil
}
