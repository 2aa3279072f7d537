package services

import (
	"context"

	"github.com/cppla/microblog/models"
)

// UserService serves the administrative user listing.
type UserService struct {
	base
}

// ListUsers returns every account. Only admins may call it.
func (s *UserService) ListUsers(ctx context.Context, caller *models.User) ([]models.User, error) {
	if caller == nil || !caller.IsAdmin {
		return nil, ErrForbidden
	}
	return s.store.Users.List(ctx)
}
