package domain

import (
	"time"

	"github.com/studiofoundry/backstage"
)

// Entity is the core content record without persistence concerns.
type Entity struct {
	ID           string
	Kind         string
	Title        string
	Fields       map[string]string
	VideoURL     string
	Status       string
	PrimaryAsset *backstage.AssetRef
	Gallery      []backstage.AssetRef
	CDate        time.Time
	MDate        time.Time
}

// OwnedAssets returns every asset ref owned by the entity, primary
// first, gallery items in their stored order. This is the deletion
// order for staged cleanup operations.
func (e Entity) OwnedAssets() []backstage.AssetRef {
	var refs []backstage.AssetRef
	if e.PrimaryAsset != nil {
		refs = append(refs, *e.PrimaryAsset)
	}
	refs = append(refs, e.Gallery...)
	return refs
}

// HasAssets reports whether any asset ref is attached.
func (e Entity) HasAssets() bool {
	return e.PrimaryAsset != nil || len(e.Gallery) > 0
}

// OwnsAsset reports whether key is referenced by the primary slot or
// the gallery sequence.
func (e Entity) OwnsAsset(key string) bool {
	if e.PrimaryAsset != nil && e.PrimaryAsset.Key == key {
		return true
	}
	for _, ref := range e.Gallery {
		if ref.Key == key {
			return true
		}
	}
	return false
}
