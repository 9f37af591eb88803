package model

import "time"

// SubscriptionApplication mirrors the Siberian `subscription_application`
// table linking an application to the plan it is billed under.
type SubscriptionApplication struct {
	SubscriptionApplicationID int64      `json:"subscription_application_id" gorm:"column:subscription_application_id;primaryKey;autoIncrement"`
	SubscriptionID            int64      `json:"subscription_id" gorm:"column:subscription_id;not null;index"`
	AppID                     int64      `json:"app_id" gorm:"column:app_id;not null;index"`
	IsActive                  int        `json:"is_active" gorm:"column:is_active;default:1"`
	ExpireAt                  *time.Time `json:"expire_at" gorm:"column:expire_at"`
	CreatedAt                 time.Time  `json:"created_at" gorm:"column:created_at"`
}

func (SubscriptionApplication) TableName() string {
	return "subscription_application"
}
