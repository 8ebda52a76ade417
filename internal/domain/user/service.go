package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"gnest/internal/pkg/token"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	repo       Repository
	issuer     *token.Issuer
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewUserService(repo Repository, issuer *token.Issuer, accessTTL, refreshTTL time.Duration) *UserService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &UserService{
		repo:       repo,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *UserService) Register(ctx context.Context, userInfo *CreateUserDTO) (*User, error) {
	findUser, err := s.repo.FindByUserName(ctx, userInfo.UserName)
	if err != nil {
		return nil, err
	}
	if findUser != nil {
		return nil, &ConflictError{UserName: userInfo.UserName}
	}

	salt, err := generateSalt()
	if err != nil {
		return nil, err
	}
	hashedPassword, err := hashPassword(userInfo.Password, salt)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:        uuid.NewString(),
		UserName:  userInfo.UserName,
		Password:  hashedPassword,
		Salt:      salt,
		Role:      "user",
		Email:     userInfo.Email,
		FullName:  userInfo.FullName,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, userName string, password string) (*User, *Tokens, error) {
	user, err := s.repo.FindByUserName(ctx, userName)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || user.Status != StatusActive || !verifyPassword(password, user.Password, user.Salt) {
		return nil, nil, &CredentialsError{}
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.issuer.Parse(refreshToken)
	if err != nil {
		return "", err
	}
	if !claims.Refresh {
		return "", errors.New("refreshToken is invalid")
	}
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		return "", err
	}
	if user == nil || user.Status != StatusActive {
		return "", &CredentialsError{}
	}
	return s.issuer.Sign(token.Claims{
		StandardClaims: jwtSubject(user.ID),
		UserName:       user.UserName,
		Role:           user.Role,
	}, s.accessTTL)
}

// Me 根据 access token 中的 subject 返回当前用户
func (s *UserService) Me(ctx context.Context, claims *token.Claims) (*User, error) {
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &CredentialsError{}
	}
	return user, nil
}

func (s *UserService) issue(user *User) (*Tokens, error) {
	access, err := s.issuer.Sign(token.Claims{
		StandardClaims: jwtSubject(user.ID),
		UserName:       user.UserName,
		Role:           user.Role,
	}, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.Sign(token.Claims{
		StandardClaims: jwtSubject(user.ID),
		UserName:       user.UserName,
		Refresh:        true,
	}, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func jwtSubject(id string) jwt.StandardClaims {
	return jwt.StandardClaims{Subject: id, Id: uuid.NewString()}
}

func generateSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

func hashPassword(password, salt string) (string, error) {
	combined := []byte(password + salt)
	hashedPassword, err := bcrypt.GenerateFromPassword(combined, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

func verifyPassword(inputPassword, hashedPassword, salt string) bool {
	combined := []byte(inputPassword + salt)
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), combined)
	return err == nil
}
