package domain

import (
	"time"

	"gorm.io/datatypes"
)

// UploadRecord is the transient side-channel record of one resumable upload,
// written when the upload subsystem accepts a file and discarded once the
// completion handler has folded the file into its dataset.
type UploadRecord struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	DatasetID string         `gorm:"column:ds_id;not null;index" json:"ds_id"`
	FileName  string         `gorm:"column:file_name;not null" json:"file_name"`
	Size      int64          `gorm:"column:size" json:"size"`
	MimeType  string         `gorm:"column:mime_type" json:"mime_type"`
	Info      datatypes.JSON `gorm:"column:info;type:text" json:"info,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (UploadRecord) TableName() string { return "upload_record" }
