package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/templui/habits/internal/model"
	"github.com/templui/habits/internal/repository"
	"github.com/templui/habits/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailAlreadyExists  = errors.New("email already exists")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrWeakPassword        = errors.New("password is too weak")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidToken        = errors.New("invalid token")
)

// RoleAuthenticated is the role claim carried by every access token.
const RoleAuthenticated = "authenticated"

type AuthService struct {
	userRepository         repository.UserRepository
	refreshTokenRepository repository.RefreshTokenRepository
	emailService           *EmailService
	jwtSecret              string
	jwtExpiry              time.Duration
	refreshTokenExpiry     time.Duration
}

func NewAuthService(
	userRepository repository.UserRepository,
	refreshTokenRepository repository.RefreshTokenRepository,
	emailService *EmailService,
	jwtSecret string,
	jwtExpiry time.Duration,
	refreshTokenExpiry time.Duration,
) *AuthService {
	return &AuthService{
		userRepository:         userRepository,
		refreshTokenRepository: refreshTokenRepository,
		emailService:           emailService,
		jwtSecret:              jwtSecret,
		jwtExpiry:              jwtExpiry,
		refreshTokenExpiry:     refreshTokenExpiry,
	}
}

// SignUp creates an account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	email = validation.NormalizeEmail(email)

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}
	err = validation.ValidatePassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		LastSignInAt: &now,
		CreatedAt:    now,
	}

	err = s.userRepository.Create(user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user signed up", "user_id", user.ID)

	if s.emailService != nil && s.emailService.Enabled() {
		err = s.emailService.SendWelcomeEmail(ctx, user.Email)
		if err != nil {
			slog.Warn("failed to send welcome email", "error", err, "user_id", user.ID)
		}
	}

	return s.newSession(user)
}

// SignIn checks a password and issues a new session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = validation.NormalizeEmail(email)

	user, err := s.userRepository.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() || s.ComparePassword(password, user.PasswordHash) != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	err = s.userRepository.UpdateLastSignIn(user.ID, now)
	if err != nil {
		slog.Warn("failed to record sign in", "error", err, "user_id", user.ID)
	} else {
		user.LastSignInAt = &now
	}

	return s.newSession(user)
}

// Refresh exchanges a refresh token for a new session. The old token is
// consumed, so a replayed token fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	token, err := s.refreshTokenRepository.ConsumeToken(refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	user, err := s.userRepository.ByID(token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return s.newSession(user)
}

// SignOut revokes every refresh token of the user. Access tokens stay valid
// until they expire.
func (s *AuthService) SignOut(ctx context.Context, userID string) error {
	err := s.refreshTokenRepository.RevokeByUser(userID)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	slog.Info("user signed out", "user_id", userID)
	return nil
}

// PurgeRefreshTokens deletes tokens that were used or expired more than
// olderThan ago. Every refresh leaves a used row behind.
func (s *AuthService) PurgeRefreshTokens(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.refreshTokenRepository.CleanupExpired(olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return n, nil
}

// RunTokenCleanup purges stale refresh tokens now and then every interval
// until ctx is done. A non-positive interval disables it.
func (s *AuthService) RunTokenCleanup(ctx context.Context, interval, olderThan time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := s.PurgeRefreshTokens(ctx, olderThan)
		if err != nil {
			slog.Error("refresh token cleanup failed", "error", err)
		} else if n > 0 {
			slog.Info("refresh tokens purged", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *AuthService) User(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepository.ByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Authenticate verifies an access token and returns the user id it names.
func (s *AuthService) Authenticate(tokenString string) (string, error) {
	claims, err := s.VerifyJWT(tokenString)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return sub, nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *AuthService) ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func (s *AuthService) GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (s *AuthService) GenerateJWT(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.jwtExpiry)

	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  RoleAuthenticated,
		"aud":   RoleAuthenticated,
		"exp":   expiresAt.Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

func (s *AuthService) VerifyJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

func (s *AuthService) newSession(user *model.User) (*model.Session, error) {
	accessToken, expiresAt, err := s.GenerateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := s.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	err = s.refreshTokenRepository.Create(&model.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().UTC().Add(s.refreshTokenExpiry),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &model.Session{
		AccessToken:  accessToken,
		TokenType:    model.TokenTypeBearer,
		ExpiresIn:    int64(s.jwtExpiry.Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}
