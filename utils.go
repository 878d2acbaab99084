package backstage

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// NewAssetKey derives the storage key for an uploaded binary. The key
// embeds the owning entity and slot so that a dangling object can be
// traced back to its owner, and a content hash so that re-uploading the
// same bytes is a no-op at the storage layer.
func NewAssetKey(entityID, slot string, content []byte) string {
	return fmt.Sprintf("assets/%s/%s/%016x", entityID, slot, xxh3.Hash(content))
}

// ParseAssetKey splits a storage key produced by NewAssetKey.
func ParseAssetKey(key string) (entityID string, slot string, err error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != "assets" {
		return "", "", fmt.Errorf("invalid asset key: %s", key)
	}
	return parts[1], parts[2], nil
}

// PublicAssetURL composes the public URL for a stored object.
func PublicAssetURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
