package providers

import (
	"github.com/bradfitz/gomemcache/memcache"
	"gorm.io/gorm"

	"github.com/studiofoundry/backstage/internal/config"
	"github.com/studiofoundry/backstage/internal/infrastructure/database"
	"github.com/studiofoundry/backstage/internal/infrastructure/gateway"
)

// NewDatabase opens a Postgres connection using the configured DSN.
func NewDatabase(conf config.Server) (*gorm.DB, error) {
	return database.NewPostgres(conf.PostgresDsn)
}

// MigrateDatabase applies migrations for the application models.
func MigrateDatabase(db *gorm.DB) error {
	return database.MigratePostgres(db)
}

// NewMemcache creates a memcache client.
func NewMemcache(addr string) *memcache.Client {
	return memcache.New(addr)
}

// NewAssetStore constructs the gateway for the object-storage service.
func NewAssetStore(conf config.Config) *gateway.AssetStoreGateway {
	return gateway.NewAssetStoreGateway(conf.Server.AssetStoreAddr, conf.Server.AssetStoreToken, conf.Site.AssetPublicBase)
}

// NewIdentity constructs the gateway for the identity provider.
func NewIdentity(mc *memcache.Client, conf config.Server) *gateway.IdentityGateway {
	return gateway.NewIdentityGateway(mc, conf.IdentityAddr, conf.IdentityAPIKey)
}
