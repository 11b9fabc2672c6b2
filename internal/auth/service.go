package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserService struct {
	repo *UserRepository
}

func NewUserService(repo *UserRepository) *UserService {
	return &UserService{repo: repo}
}

func validRole(role string) bool {
	switch role {
	case "admin", "student", "employee":
		return true
	}
	return false
}

func (s *UserService) RegisterUser(ctx context.Context, req RegisterRequest) error {
	if !validRole(req.Role) {
		return errors.New("role must be admin, student or employee")
	}

	existingUser, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if existingUser != nil {
		return errors.New("Email already registered")
	}

	// Students and employees sign in with their campus number.
	if req.Role != "admin" {
		if req.IDNumber == "" {
			return errors.New("ID number is required for student and employee registration")
		}
		existing, err := s.repo.FindByIDNumber(ctx, req.IDNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.New("ID number already registered")
		}
	}

	hashPassword, err := HashPassword(req.Password)
	if err != nil {
		return err
	}

	user := &User{
		ID:           primitive.NewObjectID(),
		IDNumber:     req.IDNumber,
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hashPassword,
		Role:         req.Role,
		Department:   req.Department,
	}

	return s.repo.CreateUser(ctx, user)
}

func (s *UserService) AuthenticateUser(ctx context.Context, cred Credential) (string, error) {
	var user *User
	var err error

	if strings.Contains(cred.Identifier, "@") {
		user, err = s.repo.FindByEmail(ctx, cred.Identifier)
	} else {
		user, err = s.repo.FindByIDNumber(ctx, cred.Identifier)
	}

	if err != nil || user == nil || !CheckPasswordHash(cred.Password, user.PasswordHash) {
		return "", errors.New("Invalid Credentials")
	}

	token, err := GenerateJWT(user, time.Hour*24)
	if err != nil {
		return "", errors.New("Token not generated")
	}
	return token, nil
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, email)
}
