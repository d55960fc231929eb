package model

import "time"

// PushSubscription holds one browser/device push endpoint for an employee.
// Re-subscribing with the same endpoint replaces the keys in place, so there
// is at most one row per (employee, endpoint) pair.
type PushSubscription struct {
	EmployeeID int64  `gorm:"primaryKey;autoIncrement:false"`
	Endpoint   string `gorm:"primaryKey;size:1024"`
	P256DH     string `gorm:"column:p256dh;not null"`
	Auth       string `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}
