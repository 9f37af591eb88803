package model

import "time"

// Application mirrors the Siberian `application` table. Only the columns
// the maintenance tasks touch are mapped.
type Application struct {
	AppID      int64     `json:"app_id" gorm:"column:app_id;primaryKey;autoIncrement"`
	Name       string    `json:"name" gorm:"column:name;size:255"`
	SizeOnDisk int64     `json:"size_on_disk" gorm:"column:size_on_disk;default:0"`
	IsActive   int       `json:"is_active" gorm:"column:is_active;default:1"`
	IsLocked   int       `json:"is_locked" gorm:"column:is_locked;default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Application) TableName() string {
	return "application"
}

// ApplicationAdmin is the Siberian ownership join table between
// applications and admin accounts.
type ApplicationAdmin struct {
	AppID   int64 `json:"app_id" gorm:"column:app_id;primaryKey"`
	AdminID int64 `json:"admin_id" gorm:"column:admin_id;primaryKey"`
}

func (ApplicationAdmin) TableName() string {
	return "application_admin"
}
