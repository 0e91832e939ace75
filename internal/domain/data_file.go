package domain

import (
	"time"
)

// DataFile is one file belonging to a dataset.
type DataFile struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetID  string         `gorm:"column:ds_id;not null;uniqueIndex:uq_data_file_ds_name,priority:1" json:"ds_id"`
	Name       string         `gorm:"column:name;not null;uniqueIndex:uq_data_file_ds_name,priority:2;index" json:"name"`
	Path       string         `gorm:"column:path" json:"path"`
	Size       int64          `gorm:"column:size" json:"size"`
	MimeType   string         `gorm:"column:mime_type" json:"mime_type"`
	Checksum   string         `gorm:"column:checksum_value" json:"checksum_value"`
	DateAdded  *time.Time     `gorm:"column:date_added" json:"date_added,omitempty"`
	Permission FilePermission `gorm:"column:permissions;not null;default:'private'" json:"permissions"`
	State      FileState      `gorm:"column:state;not null;default:'REGISTERED'" json:"state"`
}

func (DataFile) TableName() string { return "data_file" }
