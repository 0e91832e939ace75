package domain

import (
	"time"
)

// Dataset is one research submission under deposit. The primary key is the
// caller-assigned identifier, never generated here.
type Dataset struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	Title          string         `gorm:"column:title" json:"title"`
	OwnerID        string         `gorm:"column:owner_id;not null;index" json:"owner_id"`
	AppName        string         `gorm:"column:app_name;not null;index" json:"app_name"`
	Metadata       string         `gorm:"column:md;type:text" json:"-"`
	ReleaseVersion ReleaseVersion `gorm:"column:release_version;not null;default:'DRAFT'" json:"release_version"`
	Version        string         `gorm:"column:version" json:"version"`
	State          DatasetState   `gorm:"column:state;not null;default:'not-ready'" json:"state"`
	CreatedDate    time.Time      `gorm:"column:created_date;not null" json:"created_date"`
	SavedDate      time.Time      `gorm:"column:saved_date;not null" json:"saved_date"`
	SubmittedDate  *time.Time     `gorm:"column:submitted_date" json:"submitted_date,omitempty"`
}

func (Dataset) TableName() string { return "dataset" }
