package model

import "time"

// Group represents a chat group.
type Group struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:128;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Members []GroupMember `gorm:"foreignKey:GroupID"`
}

// GroupMember joins an employee to a group. Membership here is the source of
// truth for broadcast authorization; socket-level joins are not.
type GroupMember struct {
	GroupID    int64 `gorm:"primaryKey;autoIncrement:false"`
	EmployeeID int64 `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt  time.Time `gorm:"not null"`
}
