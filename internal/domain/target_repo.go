package domain

import (
	"time"

	"gorm.io/datatypes"
)

// TargetRepo is one step in a dataset's deposit chain. Insertion order (the
// auto-increment id) is execution order.
type TargetRepo struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetID     string         `gorm:"column:ds_id;not null;uniqueIndex:uq_target_repo_ds_name,priority:1" json:"ds_id"`
	Name          string         `gorm:"column:name;not null;uniqueIndex:uq_target_repo_ds_name,priority:2;index" json:"name"`
	DisplayName   string         `gorm:"column:display_name" json:"display_name"`
	Config        string         `gorm:"column:config;type:text" json:"-"`
	URL           string         `gorm:"column:url" json:"url"`
	DepositStatus DepositStatus  `gorm:"column:deposit_status;default:'initial'" json:"deposit_status"`
	DepositTime   *time.Time     `gorm:"column:deposit_time" json:"deposit_time,omitempty"`
	Duration      float64        `gorm:"column:duration;default:0" json:"duration"`
	Output        datatypes.JSON `gorm:"column:target_output;type:text" json:"output,omitempty"`
}

func (TargetRepo) TableName() string { return "target_repo" }
