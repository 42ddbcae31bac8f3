package user

import "time"

// User is the identity store row; payments copy its contact fields at creation.
type User struct {
	ID          int64     `gorm:"primaryKey"`
	Email       string    `gorm:"column:email;uniqueIndex;not null"`
	PhoneNumber string    `gorm:"column:phone_number"`
	FullName    string    `gorm:"column:full_name"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}
