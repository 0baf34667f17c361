package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"flowershop/internal/domain"
	"flowershop/internal/repository"
)

// UserService CRUD пользователей. Пароли хранятся только в виде bcrypt-хеша;
// вход и выдача токенов сюда не входят.
type UserService struct {
	repo     repository.UserRepository
	validate *validator.Validate
	cost     int
	logger   *zap.Logger
}

// UserOption настраивает UserService
type UserOption func(*UserService)

// WithPasswordCost задаёт стоимость bcrypt (в тестах bcrypt.MinCost)
func WithPasswordCost(cost int) UserOption {
	return func(s *UserService) { s.cost = cost }
}

func WithUserLogger(l *zap.Logger) UserOption {
	return func(s *UserService) { s.logger = l }
}

func NewUserService(repo repository.UserRepository, opts ...UserOption) *UserService {
	s := &UserService{
		repo:     repo,
		validate: validator.New(),
		cost:     bcrypt.DefaultCost,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserInput поля пользователя; nil означает "не менять" при обновлении
type UserInput struct {
	Username *string
	Password *string
	Phone    *string
	Email    *string
	Role     *domain.UserRole
	Active   *bool
}

const (
	minUsername = 3
	maxUsername = 50
	minPassword = 6
	// bcrypt ignores everything past 72 bytes
	maxPassword = 72
)

func (s *UserService) validateUser(u *domain.User) error {
	n := utf8.RuneCountInString(u.Username)
	if n < minUsername || n > maxUsername {
		return domain.NewValidationError("username", "must be %d to %d characters", minUsername, maxUsername)
	}
	if utf8.RuneCountInString(u.Phone) > 20 {
		return domain.NewValidationError("phone", "must be at most 20 characters")
	}
	if u.Email != "" {
		if err := s.validate.Var(u.Email, "email,max=100"); err != nil {
			return domain.NewValidationError("email", "is not a valid address")
		}
	}
	if u.Role != domain.UserRoleCustomer && u.Role != domain.UserRoleAdmin {
		return domain.NewValidationError("role", "unknown role %d", u.Role)
	}
	return nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	if len(password) < minPassword || len(password) > maxPassword {
		return "", domain.NewValidationError("password", "must be %d to %d bytes", minPassword, maxPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", persistence("hash password", err)
	}
	return string(hash), nil
}

func applyUserInput(u *domain.User, in UserInput) {
	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Email != nil {
		u.Email = strings.TrimSpace(*in.Email)
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
}

func usernameConflict(err error, username string) error {
	if errors.Is(err, repository.ErrDuplicateKey) {
		return &domain.ConflictError{Entity: "user", Field: "username", Value: username}
	}
	return err
}

func (s *UserService) Create(ctx context.Context, in UserInput) (*domain.User, error) {
	u := domain.User{Role: domain.UserRoleCustomer, Active: true}
	applyUserInput(&u, in)
	if err := s.validateUser(&u); err != nil {
		return nil, err
	}
	if in.Password == nil {
		return nil, domain.NewValidationError("password", "is required")
	}
	hash, err := s.hashPassword(*in.Password)
	if err != nil {
		return nil, err
	}
	u.Password = hash
	if err := s.repo.Create(ctx, &u); err != nil {
		return nil, persistence("create user", usernameConflict(err, u.Username))
	}
	s.logger.Info("user created", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return &u, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("id", "must be positive")
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user", id, "get user")
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, persistence("list users", err)
	}
	return list, nil
}

// Update меняет поля пользователя; новый пароль хешируется заново
func (s *UserService) Update(ctx context.Context, id int64, in UserInput) (*domain.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyUserInput(u, in)
	if err := s.validateUser(u); err != nil {
		return nil, err
	}
	if in.Password != nil {
		if u.Password, err = s.hashPassword(*in.Password); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, notFoundOr(usernameConflict(err, u.Username), "user", id, "update user")
	}
	return u, nil
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.NewValidationError("id", "must be positive")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "user", id, "delete user")
	}
	s.logger.Info("user deleted", zap.Int64("user_id", id))
	return nil
}
