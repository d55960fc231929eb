package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"employee-chat-backend/internal/model"
)

// Store defines the persistence operations the relay depends on. Message and
// membership tables are owned by the directory application; push
// subscriptions are owned by this subsystem.
type Store interface {
	// Message persistence.
	PersistMessage(ctx context.Context, groupID, senderID int64, content string) (*model.Message, error)

	// Membership resolver. Results are point-in-time snapshots; a membership
	// change takes effect on the next call.
	GroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	IsGroupMember(ctx context.Context, groupID, employeeID int64) (bool, error)

	// Subscription store.
	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, employeeID int64, endpoint string) error
	SubscriptionsForEmployee(ctx context.Context, employeeID int64) ([]model.PushSubscription, error)
	SubscriptionsFor(ctx context.Context, employeeIDs []int64) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// PersistMessage writes a new message row and returns it with the
// server-assigned ID and timestamp.
func (s *gormStore) PersistMessage(ctx context.Context, groupID, senderID int64, content string) (*model.Message, error) {
	msg := model.Message{
		GroupID:  groupID,
		SenderID: senderID,
		Content:  content,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to persist message for group %d: %w", groupID, err)
	}
	return &msg, nil
}

// GroupMemberIDs returns the employee IDs currently belonging to the group.
func (s *gormStore) GroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Where("group_id = ?", groupID).
		Pluck("employee_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve members of group %d: %w", groupID, err)
	}
	return ids, nil
}

// IsGroupMember reports whether the employee belongs to the group.
func (s *gormStore) IsGroupMember(ctx context.Context, groupID, employeeID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Where("group_id = ? AND employee_id = ?", groupID, employeeID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership of employee %d in group %d: %w", employeeID, groupID, err)
	}
	return count > 0, nil
}

// UpsertSubscription inserts the subscription or, if a row for the same
// (employee_id, endpoint) pair exists, replaces its keys in place.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "employee_id"}, {Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription for employee %d: %w", sub.EmployeeID, err)
	}
	return nil
}

// DeleteSubscription removes one subscription row. Deleting a row that is
// already gone is not an error.
func (s *gormStore) DeleteSubscription(ctx context.Context, employeeID int64, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("employee_id = ? AND endpoint = ?", employeeID, endpoint).
		Delete(&model.PushSubscription{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete subscription %q for employee %d: %w", endpoint, employeeID, err)
	}
	return nil
}

// SubscriptionsForEmployee returns all subscriptions owned by one employee.
func (s *gormStore) SubscriptionsForEmployee(ctx context.Context, employeeID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for employee %d: %w", employeeID, err)
	}
	return subs, nil
}

// SubscriptionsFor returns the union of subscriptions for a set of employees
// in a single query. Used by group dispatch to avoid N lookups.
func (s *gormStore) SubscriptionsFor(ctx context.Context, employeeIDs []int64) ([]model.PushSubscription, error) {
	if len(employeeIDs) == 0 {
		return nil, nil
	}
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("employee_id IN ?", employeeIDs).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for %d employees: %w", len(employeeIDs), err)
	}
	return subs, nil
}
