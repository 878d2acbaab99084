package models

import (
	"time"
)

type Profile struct {
	ID     string    `json:"id" gorm:"primaryKey;type:text"`
	Email  string    `json:"email" gorm:"type:text;uniqueIndex"`
	Role   string    `json:"role" gorm:"type:text"`
	Status string    `json:"status" gorm:"type:text"`
	CDate  time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate  time.Time `json:"mdate" gorm:"autoUpdateTime"`
}
