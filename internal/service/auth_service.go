package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/repository"
	"github.com/d60-Lab/livesync/internal/session"
)

// AuthService 开发后端的登录与令牌签发。
type AuthService interface {
	Login(ctx context.Context, userID int64, password string) (string, error)
	Issue(u *model.User) (string, error)
	Verify(token string) (session.Identity, error)
}

type authService struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
}

func NewAuthService(users repository.UserRepository, secret string, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &authService{users: users, secret: []byte(secret), ttl: ttl}
}

func (s *authService) Login(ctx context.Context, userID int64, password string) (string, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrBadLogin
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrBadLogin
	}
	return s.Issue(u)
}

func (s *authService) Issue(u *model.User) (string, error) {
	now := time.Now()
	claims := session.Claims{
		Name: u.Name,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *authService) Verify(token string) (session.Identity, error) {
	var claims session.Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return session.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return session.Identity{}, fmt.Errorf("%w: subject", ErrInvalidToken)
	}
	return session.Identity{ID: id, Name: claims.Name, Role: claims.Role}, nil
}

// HashPassword bcrypt 哈希，种子数据使用
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
