package domain

// Config carries the settings layers below present need at runtime.
type Config struct {
	FQDN            string
	AssetPublicBase string
}
