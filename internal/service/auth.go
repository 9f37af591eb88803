package service

import (
	"context"
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type AuthService interface {
	Login(ctx context.Context, req *v1.LoginRequest) (string, error)
}

// NewAuthService builds the admin login service. Credentials live in
// configuration: a single admin username plus a bcrypt hash of the
// password, matching how the host panel provisions access.
func NewAuthService(service *Service, conf *viper.Viper, logger *log.Logger) AuthService {
	return &authService{
		Service:      service,
		logger:       logger,
		username:     conf.GetString("security.admin.username"),
		passwordHash: conf.GetString("security.admin.password_hash"),
	}
}

type authService struct {
	*Service
	logger       *log.Logger
	username     string
	passwordHash string
}

func (s *authService) Login(ctx context.Context, req *v1.LoginRequest) (string, error) {
	if s.username == "" || req.Username != s.username {
		return "", v1.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(req.Password)); err != nil {
		return "", v1.ErrUnauthorized
	}
	token, err := s.jwt.GenToken(req.Username, time.Now().Add(24*time.Hour))
	if err != nil {
		s.logger.WithContext(ctx).Error("token generation failed")
		return "", v1.ErrInternalServerError
	}
	return token, nil
}
