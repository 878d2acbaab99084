package models

import (
	"time"
)

type Entity struct {
	ID       string    `json:"id" gorm:"primaryKey;type:text"`
	Kind     string    `json:"kind" gorm:"type:text;index"`
	Title    string    `json:"title" gorm:"type:text"`
	Fields   string    `json:"fields" gorm:"type:jsonb;default:'null'"`
	VideoURL string    `json:"videoUrl" gorm:"type:text"`
	Status   string    `json:"status" gorm:"type:text;index"`
	CDate    time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate    time.Time `json:"mdate" gorm:"autoUpdateTime"`
}

type EntityAsset struct {
	EntityID string    `json:"entityID" gorm:"primaryKey;type:text"`
	Entity   Entity    `json:"-" gorm:"foreignKey:EntityID;references:ID;constraint:OnDelete:CASCADE;"`
	Key      string    `json:"key" gorm:"primaryKey;type:text"`
	URL      string    `json:"url" gorm:"type:text"`
	Slot     string    `json:"slot" gorm:"type:text"`
	Position int       `json:"position" gorm:"type:integer"`
	CDate    time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
