package backstage

import (
	"time"
)

// Entity kinds managed by the CMS.
const (
	KindArticle     string = "article"
	KindGallery     string = "gallery"
	KindTestimonial string = "testimonial"
	KindShortVideo  string = "short-video"
)

// Entity statuses persisted in the record store. A brand-new entity that
// has never been saved has no row and therefore no status.
const (
	StatusDraft     string = "draft"
	StatusPublished string = "published"
)

// Operator roles, least privileged first.
const (
	RoleViewer string = "viewer"
	RoleEditor string = "editor"
	RoleAdmin  string = "admin"
)

// LeastPrivilegedRole is the role assigned when a profile has to be
// reconstructed without knowing its original role.
const LeastPrivilegedRole = RoleViewer

// AssetRef points at one binary object in external storage. A ref is
// owned by exactly one entity field; refs are never shared.
type AssetRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Gallery slots an asset can be attached to.
const (
	SlotPrimary string = "primary"
	SlotGallery string = "gallery"
)

// Entity is the wire representation of a content record.
type Entity struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Title        string            `json:"title"`
	Fields       map[string]string `json:"fields,omitempty"`
	VideoURL     string            `json:"videoUrl,omitempty"`
	Status       string            `json:"status"`
	PrimaryAsset *AssetRef         `json:"primaryAsset,omitempty"`
	Gallery      []AssetRef        `json:"gallery,omitempty"`
	CDate        time.Time         `json:"cdate"`
	MDate        time.Time         `json:"mdate"`
}

// Profile is the wire representation of an operator-profile row.
type Profile struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// Step statuses reported on the progress stream.
const (
	StepStatusRunning     string = "running"
	StepStatusOK          string = "ok"
	StepStatusRetrying    string = "retrying"
	StepStatusFailed      string = "failed"
	StepStatusCompensated string = "compensated"
)

// ProgressEvent is emitted after every step state change of a staged
// operation. Percent is derived from completed steps, never simulated.
// Subject is the id the caller already holds before dispatch (the
// entity or account being mutated), so a progress subscription can be
// opened before the operation starts.
type ProgressEvent struct {
	OperationID string `json:"operationId"`
	Subject     string `json:"subject"`
	Operation   string `json:"operation"`
	Step        string `json:"step"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	Percent     int    `json:"percent"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Final       bool   `json:"final"`
}

// StepReport is the per-step record included in an operation outcome.
type StepReport struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
	Compensated bool   `json:"compensated,omitempty"`
}

// OperationResult is the terminal outcome of a staged operation.
type OperationResult struct {
	OperationID string       `json:"operationId"`
	OK          bool         `json:"ok"`
	Detail      string       `json:"detail,omitempty"`
	Steps       []StepReport `json:"steps"`
}

// PublishResult reports a publish attempt. Missing is non-empty exactly
// when the entity failed the completeness check and no status change
// was persisted.
type PublishResult struct {
	OK      bool     `json:"ok"`
	Missing []string `json:"missing,omitempty"`
}
