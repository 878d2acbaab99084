package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
)

// EntityUsecase owns entity state transitions. Any transition that
// touches the asset store goes through the staged-operation runner;
// a per-entity lock serializes operations so no two steps ever target
// the same entity's assets concurrently.
type EntityUsecase struct {
	entities EntityRepository
	assets   AssetStore
	locks    EntityLocker
	runner   *Runner
}

func NewEntityUsecase(
	entities EntityRepository,
	assets AssetStore,
	locks EntityLocker,
	runner *Runner,
) *EntityUsecase {
	return &EntityUsecase{
		entities: entities,
		assets:   assets,
		locks:    locks,
		runner:   runner,
	}
}

type EntityInput struct {
	ID           string
	Kind         string
	Title        string
	Fields       map[string]string
	VideoURL     string
	PrimaryAsset *backstage.AssetRef
	Gallery      []backstage.AssetRef
}

func requireRole(s domain.Session, min string) error {
	if !domain.RoleAtLeast(s.Role, min) {
		return domain.ForbiddenError{Role: s.Role}
	}
	return nil
}

// Create performs the first save of a draft. The identifying field is
// always required here: saving an asset-bearing entity without it would
// create a nameless orphan nothing can find again.
func (uc *EntityUsecase) Create(ctx context.Context, session domain.Session, input EntityInput) (domain.Entity, error) {
	if err := requireRole(session, backstage.RoleEditor); err != nil {
		return domain.Entity{}, err
	}

	if input.Title == "" {
		return domain.Entity{}, domain.ValidationError{Missing: []string{"title"}}
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	entity := domain.Entity{
		ID:           id,
		Kind:         input.Kind,
		Title:        input.Title,
		Fields:       input.Fields,
		VideoURL:     domain.NormalizeVideoURL(input.VideoURL),
		Status:       backstage.StatusDraft,
		PrimaryAsset: input.PrimaryAsset,
		Gallery:      input.Gallery,
		CDate:        time.Now().UTC(),
		MDate:        time.Now().UTC(),
	}

	if err := uc.entities.Create(ctx, entity); err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

// Update edits scalar fields and may reorder the gallery. Asset refs
// cannot be attached or detached here; that is the coordinator's job.
func (uc *EntityUsecase) Update(ctx context.Context, session domain.Session, id string, input EntityInput) (domain.Entity, error) {
	if err := requireRole(session, backstage.RoleEditor); err != nil {
		return domain.Entity{}, err
	}

	release, err := uc.locks.Acquire(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	defer release()

	entity, err := uc.entities.Get(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}

	if input.Title == "" && entity.HasAssets() {
		return domain.Entity{}, domain.ValidationError{Missing: []string{"title"}}
	}

	if input.Gallery != nil {
		if !samePermutation(entity.Gallery, input.Gallery) {
			return domain.Entity{}, domain.InvariantError{Msg: "gallery refs can only be reordered through a row edit"}
		}
		entity.Gallery = input.Gallery
	}

	entity.Title = input.Title
	entity.Fields = input.Fields
	entity.VideoURL = domain.NormalizeVideoURL(input.VideoURL)
	entity.MDate = time.Now().UTC()

	if err := uc.entities.Update(ctx, entity); err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

func (uc *EntityUsecase) Get(ctx context.Context, id string) (domain.Entity, error) {
	return uc.entities.Get(ctx, id)
}

func (uc *EntityUsecase) List(ctx context.Context, kind string, limit int) ([]domain.Entity, error) {
	return uc.entities.List(ctx, kind, limit)
}

// Publish gates the draft -> published transition on the completeness
// evaluator. No status change is persisted when anything is missing.
func (uc *EntityUsecase) Publish(ctx context.Context, session domain.Session, id string) (backstage.PublishResult, error) {
	if err := requireRole(session, backstage.RoleEditor); err != nil {
		return backstage.PublishResult{}, err
	}

	release, err := uc.locks.Acquire(ctx, id)
	if err != nil {
		return backstage.PublishResult{}, err
	}
	defer release()

	entity, err := uc.entities.Get(ctx, id)
	if err != nil {
		return backstage.PublishResult{}, err
	}

	result := domain.Evaluate(entity)
	if !result.Complete {
		return backstage.PublishResult{Missing: result.Missing}, nil
	}

	op := NewStagedOperation("publish", id, Step{
		Name: "update entity status",
		Forward: func(ctx context.Context) error {
			return uc.entities.UpdateStatus(ctx, id, backstage.StatusPublished)
		},
	})

	if _, err := uc.runner.Run(ctx, op); err != nil {
		return backstage.PublishResult{}, err
	}
	return backstage.PublishResult{OK: true}, nil
}

// Unpublish is unconditional: a single status update with no asset
// impact.
func (uc *EntityUsecase) Unpublish(ctx context.Context, session domain.Session, id string) error {
	if err := requireRole(session, backstage.RoleEditor); err != nil {
		return err
	}

	release, err := uc.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if _, err := uc.entities.Get(ctx, id); err != nil {
		return err
	}

	return uc.entities.UpdateStatus(ctx, id, backstage.StatusDraft)
}

// Delete removes every owned asset first (primary, then gallery in
// stored order) and the entity row last. A crash mid-way leaves a row
// referencing missing assets, which re-running Delete repairs; the
// reverse order would leave orphaned assets nothing can reach.
func (uc *EntityUsecase) Delete(ctx context.Context, session domain.Session, id string) (backstage.OperationResult, error) {
	if err := requireRole(session, backstage.RoleEditor); err != nil {
		return backstage.OperationResult{}, err
	}

	release, err := uc.locks.Acquire(ctx, id)
	if err != nil {
		return backstage.OperationResult{}, err
	}
	defer release()

	entity, err := uc.entities.Get(ctx, id)
	if err != nil {
		return backstage.OperationResult{}, err
	}

	var steps []Step
	for _, ref := range entity.OwnedAssets() {
		key := ref.Key
		steps = append(steps, Step{
			Name: fmt.Sprintf("delete asset %s", key),
			Forward: func(ctx context.Context) error {
				return uc.assets.Delete(ctx, key)
			},
		})
	}
	steps = append(steps, Step{
		Name: "delete entity row",
		Forward: func(ctx context.Context) error {
			return uc.entities.Delete(ctx, id)
		},
	})

	return uc.runner.Run(ctx, NewStagedOperation("delete-entity", id, steps...))
}

// AbandonDraft cleans up assets uploaded for a draft that was never
// saved. There is no row to delete; a failed deletion leaves the
// remaining assets in place and is surfaced as retryable so storage
// never leaks invisibly.
func (uc *EntityUsecase) AbandonDraft(ctx context.Context, session domain.Session, id string, refs []backstage.AssetRef) (backstage.OperationResult, error) {
	if err := requireRole(session, backstage.RoleEditor); err != nil {
		return backstage.OperationResult{}, err
	}

	release, err := uc.locks.Acquire(ctx, id)
	if err != nil {
		return backstage.OperationResult{}, err
	}
	defer release()

	if _, err := uc.entities.Get(ctx, id); err == nil {
		return backstage.OperationResult{}, domain.InvariantError{Msg: "entity already saved, use delete instead"}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return backstage.OperationResult{}, err
	}

	if len(refs) == 0 {
		return backstage.OperationResult{OK: true}, nil
	}

	var steps []Step
	for _, ref := range refs {
		key := ref.Key
		steps = append(steps, Step{
			Name: fmt.Sprintf("delete asset %s", key),
			Forward: func(ctx context.Context) error {
				return uc.assets.Delete(ctx, key)
			},
		})
	}

	return uc.runner.Run(ctx, NewStagedOperation("abandon-draft", id, steps...))
}

// UploadAsset stores the bytes and attaches the resulting ref to the
// given slot. Replacing an existing primary deletes the old ref before
// the new one is attached, so two keys are never referenced by one
// field at the same time. Uploads for a not-yet-saved draft are stored
// unattached; the client either saves the draft with the refs or
// abandons it.
func (uc *EntityUsecase) UploadAsset(ctx context.Context, session domain.Session, id, slot string, data []byte, contentType string) (backstage.AssetRef, error) {
	if err := requireRole(session, backstage.RoleEditor); err != nil {
		return backstage.AssetRef{}, err
	}

	if slot != backstage.SlotPrimary && slot != backstage.SlotGallery {
		return backstage.AssetRef{}, domain.InvariantError{Msg: fmt.Sprintf("unknown asset slot %s", slot)}
	}

	release, err := uc.locks.Acquire(ctx, id)
	if err != nil {
		return backstage.AssetRef{}, err
	}
	defer release()

	key := backstage.NewAssetKey(id, slot, data)

	entity, err := uc.entities.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		// Unsaved draft: store only, nothing rowside yet.
		return uc.assets.Put(ctx, key, data, contentType)
	}
	if err != nil {
		return backstage.AssetRef{}, err
	}

	var steps []Step
	if slot == backstage.SlotPrimary && entity.PrimaryAsset != nil {
		oldKey := entity.PrimaryAsset.Key
		steps = append(steps, Step{
			Name: fmt.Sprintf("delete asset %s", oldKey),
			Forward: func(ctx context.Context) error {
				return uc.assets.Delete(ctx, oldKey)
			},
		})
	}

	var ref backstage.AssetRef
	steps = append(steps,
		Step{
			Name: fmt.Sprintf("upload asset %s", key),
			Forward: func(ctx context.Context) error {
				var err error
				ref, err = uc.assets.Put(ctx, key, data, contentType)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return uc.assets.Delete(ctx, key)
			},
		},
		Step{
			Name: "update entity row",
			Forward: func(ctx context.Context) error {
				if slot == backstage.SlotPrimary {
					entity.PrimaryAsset = &ref
				} else {
					entity.Gallery = append(entity.Gallery, ref)
				}
				entity.MDate = time.Now().UTC()
				return uc.entities.Update(ctx, entity)
			},
		},
	)

	opName := "attach-asset"
	if slot == backstage.SlotPrimary && entity.PrimaryAsset != nil {
		opName = "replace-primary"
	}

	if _, err := uc.runner.Run(ctx, NewStagedOperation(opName, id, steps...)); err != nil {
		return backstage.AssetRef{}, err
	}
	return ref, nil
}

// DetachAsset removes one owned ref: the stored object first, then the
// row reference. Detaching a key the entity does not own is a
// programming defect and fails fast.
func (uc *EntityUsecase) DetachAsset(ctx context.Context, session domain.Session, id, key string) (backstage.OperationResult, error) {
	if err := requireRole(session, backstage.RoleEditor); err != nil {
		return backstage.OperationResult{}, err
	}

	release, err := uc.locks.Acquire(ctx, id)
	if err != nil {
		return backstage.OperationResult{}, err
	}
	defer release()

	entity, err := uc.entities.Get(ctx, id)
	if err != nil {
		return backstage.OperationResult{}, err
	}

	if !entity.OwnsAsset(key) {
		return backstage.OperationResult{}, domain.InvariantError{Msg: fmt.Sprintf("asset %s is not owned by entity %s", key, id)}
	}

	steps := []Step{
		{
			Name: fmt.Sprintf("delete asset %s", key),
			Forward: func(ctx context.Context) error {
				return uc.assets.Delete(ctx, key)
			},
		},
		{
			Name: "update entity row",
			Forward: func(ctx context.Context) error {
				if entity.PrimaryAsset != nil && entity.PrimaryAsset.Key == key {
					entity.PrimaryAsset = nil
				} else {
					kept := entity.Gallery[:0]
					for _, ref := range entity.Gallery {
						if ref.Key != key {
							kept = append(kept, ref)
						}
					}
					entity.Gallery = kept
				}
				entity.MDate = time.Now().UTC()
				return uc.entities.Update(ctx, entity)
			},
		},
	}

	return uc.runner.Run(ctx, NewStagedOperation("detach-asset", id, steps...))
}

func samePermutation(a, b []backstage.AssetRef) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make(map[string]int, len(a))
	for _, ref := range a {
		keys[ref.Key]++
	}
	for _, ref := range b {
		keys[ref.Key]--
		if keys[ref.Key] < 0 {
			return false
		}
	}
	return true
}
