package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const userIDKey = "user_id"

// tokenLeeway tolerates small clock skew between issuer and verifier.
const tokenLeeway = 30 * time.Second

// requireUser verifies "Authorization: Bearer <JWT>" and stores the user id on the context.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := s.userIDFromRequest(c.Request())
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		}
		c.Set(userIDKey, id)
		return next(c)
	}
}

// userIDFromRequest extracts the bearer token, verifies HS256 and returns sub as a user id.
func (s *Server) userIDFromRequest(r *http.Request) (int64, error) {
	tok, err := bearerToken(r.Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return 0, err
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(tokenLeeway), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return 0, errors.New("invalid token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("bad subject")
	}
	return id, nil
}

func bearerToken(header string) (string, error) {
	v := strings.TrimSpace(header)
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		if t := strings.TrimSpace(v[7:]); t != "" {
			return t, nil
		}
	}
	return "", errors.New("no bearer token")
}

// currentUser returns the id stored by requireUser.
func currentUser(c echo.Context) int64 {
	id, _ := c.Get(userIDKey).(int64)
	return id
}
