package user

import (
	userDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/user"
)

type User struct {
	ID          int64
	Email       string
	PhoneNumber string
	FullName    string
	IsActive    bool
}

// CustomerSnapshot is copied onto a payment when it is created and never refreshed.
type CustomerSnapshot struct {
	Email string
	Phone string
	Name  string
}

func (u *User) Snapshot() CustomerSnapshot {
	return CustomerSnapshot{
		Email: u.Email,
		Phone: u.PhoneNumber,
		Name:  u.FullName,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:          u.ID,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
	}
}
