package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cppla/microblog/events"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/repository"
	"github.com/cppla/microblog/utils"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,20}$`)

// ValidUsername reports whether name is 2 to 20 letters, digits, '_' or '-'.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// AuthService covers registration, login and session identity resolution.
type AuthService struct {
	base
	admins []string
}

// Register creates an account. The email is checked before the username so the
// caller reports the email collision when both collide.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if !ValidUsername(username) || email == "" || password == "" {
		return nil, ErrValidationFailed
	}

	if _, err := s.store.Users.FindByEmail(ctx, email); err == nil {
		return nil, &DuplicateIdentityError{Field: FieldEmail}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.Users.FindByUsername(ctx, username); err == nil {
		return nil, &DuplicateIdentityError{Field: FieldUsername}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      s.isConfiguredAdmin(username),
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// lost a race with a concurrent registration; report the field that now collides
			if _, ferr := s.store.Users.FindByEmail(ctx, email); ferr == nil {
				return nil, &DuplicateIdentityError{Field: FieldEmail}
			}
			return nil, &DuplicateIdentityError{Field: FieldUsername}
		}
		return nil, err
	}

	s.publish(ctx, events.Event{Type: events.UserRegistered, UserID: user.ID})
	return user, nil
}

// Login resolves an email/password pair to an account. Unknown email and wrong
// password both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.Users.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// CurrentUser loads the account a session is bound to.
func (s *AuthService) CurrentUser(ctx context.Context, id uint) (*models.User, error) {
	if id == 0 {
		return nil, ErrUnauthenticated
	}
	user, err := s.store.Users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	return user, err
}

// PromoteAdmins grants is_admin to the configured admin usernames that already exist.
func (s *AuthService) PromoteAdmins(ctx context.Context) (int64, error) {
	return s.store.Users.GrantAdmin(ctx, s.admins)
}

func (s *AuthService) isConfiguredAdmin(username string) bool {
	for _, name := range s.admins {
		if name == username {
			return true
		}
	}
	return false
}
