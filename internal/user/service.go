package user

import (
	"context"

	"github.com/frahmantamala/payment-reconciliation/internal"
	userDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/user"
)

// Repository returns (nil, nil) when the user does not exist.
type Repository interface {
	GetByID(ctx context.Context, userID int64) (*userDatamodel.User, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, internal.NewPersistenceError("failed to get user by id", err)
	}
	if u == nil || !u.IsActive {
		return nil, internal.ErrUserNotFound
	}
	return FromDataModel(u), nil
}
