package model

import "time"

// Admin mirrors the Siberian `admin` table (app owners).
type Admin struct {
	AdminID   int64     `json:"admin_id" gorm:"column:admin_id;primaryKey;autoIncrement"`
	Email     string    `json:"email" gorm:"column:email;size:255"`
	Firstname string    `json:"firstname" gorm:"column:firstname;size:100"`
	Lastname  string    `json:"lastname" gorm:"column:lastname;size:100"`
	IsActive  int       `json:"is_active" gorm:"column:is_active;default:1"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Admin) TableName() string {
	return "admin"
}
