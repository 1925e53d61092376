package services

import (
	"context"

	"greendrake/estate/internal/models"
	"greendrake/estate/internal/store"
)

// IUserService reads the user profiles mirrored from the identity provider.
type IUserService interface {
	FindByID(ctx context.Context, userID string) (*models.User, error)
}

// userService implements IUserService.
type userService struct {
	users store.DirectoryStore
}

// NewUserService creates a new UserService.
func NewUserService(users store.DirectoryStore) IUserService {
	return &userService{users: users}
}

// FindByID returns apperr.NotFound for unknown ids.
func (s *userService) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return s.users.FindUser(ctx, userID)
}
