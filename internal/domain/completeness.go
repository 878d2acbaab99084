package domain

import (
	"regexp"

	"github.com/studiofoundry/backstage"
)

// Completeness is the result of a publish-readiness evaluation.
type Completeness struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing,omitempty"`
}

// Recognized external video provider URL shapes. A URL matching neither
// is treated as absent, not stored.
var (
	youtubeURLPattern = regexp.MustCompile(`^https?://(www\.)?(youtube\.com/watch\?v=[A-Za-z0-9_-]{6,}|youtu\.be/[A-Za-z0-9_-]{6,})$`)
	vimeoURLPattern   = regexp.MustCompile(`^https?://(www\.)?vimeo\.com/[0-9]+$`)
)

// IsValidVideoURL reports whether url matches one of the recognized
// provider shapes.
func IsValidVideoURL(url string) bool {
	return youtubeURLPattern.MatchString(url) || vimeoURLPattern.MatchString(url)
}

// NormalizeVideoURL returns url unchanged when valid and the empty
// string otherwise.
func NormalizeVideoURL(url string) string {
	if IsValidVideoURL(url) {
		return url
	}
	return ""
}

type requirement struct {
	name    string
	present func(Entity) bool
}

func hasTitle(e Entity) bool       { return e.Title != "" }
func hasPrimary(e Entity) bool     { return e.PrimaryAsset != nil }
func hasGalleryItem(e Entity) bool { return len(e.Gallery) > 0 }
func hasVideoURL(e Entity) bool    { return IsValidVideoURL(e.VideoURL) }

func hasField(name string) func(Entity) bool {
	return func(e Entity) bool { return e.Fields[name] != "" }
}

// Requirement sets per kind, in the order missing fields are reported.
var kindRequirements = map[string][]requirement{
	backstage.KindArticle: {
		{"title", hasTitle},
		{"body", hasField("body")},
		{"primaryAsset", hasPrimary},
	},
	backstage.KindGallery: {
		{"title", hasTitle},
		{"shotDate", hasField("shotDate")},
		{"venue", hasField("venue")},
		{"credit", hasField("credit")},
		{"primaryAsset", hasPrimary},
		{"galleryAssets", hasGalleryItem},
	},
	backstage.KindTestimonial: {
		{"title", hasTitle},
		{"quote", hasField("quote")},
		{"videoUrl", hasVideoURL},
	},
	backstage.KindShortVideo: {
		{"title", hasTitle},
		{"videoUrl", hasVideoURL},
	},
}

// Evaluate computes publish readiness for an entity. Pure and
// deterministic: the same entity value always yields the same result,
// and Missing preserves the declared requirement order.
func Evaluate(e Entity) Completeness {
	reqs, ok := kindRequirements[e.Kind]
	if !ok {
		return Completeness{Missing: []string{"kind"}}
	}

	var missing []string
	for _, req := range reqs {
		if !req.present(e) {
			missing = append(missing, req.name)
		}
	}

	return Completeness{Complete: len(missing) == 0, Missing: missing}
}
