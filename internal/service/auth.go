// Package service contains application services: authentication, board
// entities, reordering and attachments. Services validate input, enforce
// ownership through the project chain and delegate storage to repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/taskboard/internal/crypto"
	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/limiter"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
)

// Credential bounds.
const (
	maxUsernameLen = 64
	minPasswordLen = 6
)

// AuthService defines account operations.
type AuthService interface {
	// Register creates a new user with argon2id password hashing.
	Register(ctx context.Context, username, password string) (userID int64, err error)
	// LoginWithAddr applies rate limiting per (username, addr) and issues an access token.
	LoginWithAddr(ctx context.Context, username, password, addr string) (tokens model.Tokens, user model.User, err error)
	// Me returns the account behind an authenticated user id.
	Me(ctx context.Context, userID int64) (*model.User, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

// Register validates credentials and stores a new user.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLen {
		return 0, fmt.Errorf("%w: username must be 1..%d characters", errs.ErrValidation, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, minPasswordLen)
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return 0, err
	}
	u := &model.User{Username: username, PwdHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return 0, err
	}
	return u.ID, nil
}

// LoginWithAddr authenticates with rate limiting by (username, addr).
func (s *AuthServiceImpl) LoginWithAddr(ctx context.Context, username, password, addr string) (model.Tokens, model.User, error) {
	username = strings.TrimSpace(username)
	addrHash := limiter.HashAddr(addr)

	allowed, _, err := s.lim.Allow(ctx, username, addrHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	ok := false
	if err == nil {
		if ok, err = pkgcrypto.VerifyPassword(password, u.PwdHash); err != nil {
			return model.Tokens{}, model.User{}, err
		}
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, username, addrHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, addrHash)

	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *u, nil
}

// Me loads the caller's account.
func (s *AuthServiceImpl) Me(ctx context.Context, userID int64) (*model.User, error) {
	if userID <= 0 {
		return nil, errs.ErrUnauthorized
	}
	return s.users.GetByID(ctx, userID)
}

// issueAccessToken creates a signed HS256 JWT whose subject is the decimal user id.
func (s *AuthServiceImpl) issueAccessToken(userID int64) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
