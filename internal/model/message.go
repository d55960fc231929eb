package model

import "time"

// Message is a persisted chat message. The relay only ever writes new rows
// and echoes the assigned ID back to the sender; history reads belong to the
// directory application's HTTP layer.
type Message struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	GroupID   int64  `gorm:"index;not null"`
	SenderID  int64  `gorm:"not null"`
	Content   string `gorm:"size:2000;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
