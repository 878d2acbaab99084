package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
	"github.com/studiofoundry/backstage/internal/infrastructure/database/models"
)

type EntityRepository struct {
	db *gorm.DB
}

func NewEntityRepository(db *gorm.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func (r *EntityRepository) Create(ctx context.Context, entity domain.Entity) error {

	row, assets, err := toModel(entity)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ConflictError{Resource: "entity " + entity.ID}
			}
			return err
		}
		for _, asset := range assets {
			if err := tx.Create(&asset).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *EntityRepository) Get(ctx context.Context, id string) (domain.Entity, error) {

	var row models.Entity
	err := r.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Entity{}, domain.NotFoundError{Resource: "entity " + id}
		}
		return domain.Entity{}, err
	}

	var assets []models.EntityAsset
	err = r.db.WithContext(ctx).
		Where("entity_id = ?", id).
		Order("slot, position").
		Find(&assets).Error
	if err != nil {
		return domain.Entity{}, err
	}

	return fromModel(row, assets)
}

func (r *EntityRepository) Update(ctx context.Context, entity domain.Entity) error {

	row, assets, err := toModel(entity)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(&models.Entity{}).
			Where("id = ?", entity.ID).
			Updates(map[string]any{
				"kind":      row.Kind,
				"title":     row.Title,
				"fields":    row.Fields,
				"video_url": row.VideoURL,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.NotFoundError{Resource: "entity " + entity.ID}
		}

		// Asset rows are replaced wholesale so gallery order is exactly
		// what the caller passed.
		if err := tx.Delete(&models.EntityAsset{}, "entity_id = ?", entity.ID).Error; err != nil {
			return err
		}
		for _, asset := range assets {
			if err := tx.Create(&asset).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *EntityRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Entity{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "entity " + id}
	}
	return nil
}

// Delete removes the row and its asset rows. A missing row counts as
// success so a re-issued deletion converges.
func (r *EntityRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.EntityAsset{}, "entity_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Entity{}, "id = ?", id).Error
	})
}

func (r *EntityRepository) List(ctx context.Context, kind string, limit int) ([]domain.Entity, error) {

	query := r.db.WithContext(ctx).Order("m_date desc")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.Entity
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var assetRows []models.EntityAsset
	if len(ids) > 0 {
		err := r.db.WithContext(ctx).
			Where("entity_id IN ?", ids).
			Order("slot, position").
			Find(&assetRows).Error
		if err != nil {
			return nil, err
		}
	}

	byEntity := map[string][]models.EntityAsset{}
	for _, asset := range assetRows {
		byEntity[asset.EntityID] = append(byEntity[asset.EntityID], asset)
	}

	entities := make([]domain.Entity, 0, len(rows))
	for _, row := range rows {
		entity, err := fromModel(row, byEntity[row.ID])
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

func toModel(entity domain.Entity) (models.Entity, []models.EntityAsset, error) {

	fields, err := json.Marshal(entity.Fields)
	if err != nil {
		return models.Entity{}, nil, err
	}

	row := models.Entity{
		ID:       entity.ID,
		Kind:     entity.Kind,
		Title:    entity.Title,
		Fields:   string(fields),
		VideoURL: entity.VideoURL,
		Status:   entity.Status,
	}

	var assets []models.EntityAsset
	if entity.PrimaryAsset != nil {
		assets = append(assets, models.EntityAsset{
			EntityID: entity.ID,
			Key:      entity.PrimaryAsset.Key,
			URL:      entity.PrimaryAsset.URL,
			Slot:     backstage.SlotPrimary,
		})
	}
	for i, ref := range entity.Gallery {
		assets = append(assets, models.EntityAsset{
			EntityID: entity.ID,
			Key:      ref.Key,
			URL:      ref.URL,
			Slot:     backstage.SlotGallery,
			Position: i,
		})
	}

	return row, assets, nil
}

func fromModel(row models.Entity, assets []models.EntityAsset) (domain.Entity, error) {

	var fields map[string]string
	if row.Fields != "" && row.Fields != "null" {
		if err := json.Unmarshal([]byte(row.Fields), &fields); err != nil {
			return domain.Entity{}, err
		}
	}

	entity := domain.Entity{
		ID:       row.ID,
		Kind:     row.Kind,
		Title:    row.Title,
		Fields:   fields,
		VideoURL: row.VideoURL,
		Status:   row.Status,
		CDate:    row.CDate,
		MDate:    row.MDate,
	}

	for _, asset := range assets {
		ref := backstage.AssetRef{Key: asset.Key, URL: asset.URL}
		if asset.Slot == backstage.SlotPrimary {
			primary := ref
			entity.PrimaryAsset = &primary
		} else {
			entity.Gallery = append(entity.Gallery, ref)
		}
	}

	return entity, nil
}
