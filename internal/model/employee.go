package model

import "time"

// Employee represents a directory member. The employee table is owned by the
// surrounding directory application; the relay only reads it.
type Employee struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:256;not null"`
	Email     string `gorm:"uniqueIndex;size:256;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
