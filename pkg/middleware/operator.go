package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/scriptify-cm/event-qr-platform/pkg/response"
)

const (
	// OperatorIDHeader carries the operator id when bearer tokens are disabled
	OperatorIDHeader = "X-Operator-ID"
	// OperatorRoleHeader carries the operator role when bearer tokens are disabled
	OperatorRoleHeader = "X-Operator-Role"
	// ContextKeyOperator is the gin context key for the resolved Operator
	ContextKeyOperator = "operator"

	RoleManager = "manager"
	RoleAdmin   = "admin"
)

var (
	ErrMissingOperator = errors.New("missing operator identity")
	ErrInvalidToken    = errors.New("invalid operator token")
)

// Operator is the authenticated staff member performing a gate action
type Operator struct {
	ID   string
	Role string
}

// OperatorAuthConfig selects how operator identity is resolved
type OperatorAuthConfig struct {
	// JWTEnabled requires "Authorization: Bearer <token>"; otherwise headers are trusted
	JWTEnabled bool
	Secret     string
	Issuer     string
}

// OperatorAuth resolves the operator for the request and aborts with 401 when absent
func OperatorAuth(cfg OperatorAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			op  Operator
			err error
		)
		if cfg.JWTEnabled {
			op, err = operatorFromToken(c.GetHeader("Authorization"), cfg)
		} else {
			op, err = operatorFromHeaders(c)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Fail("UNAUTHORIZED", err.Error()))
			return
		}
		c.Set(ContextKeyOperator, op)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the operator holds one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		op, ok := GetOperator(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Fail("UNAUTHORIZED", ErrMissingOperator.Error()))
			return
		}
		for _, r := range roles {
			if op.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, response.Fail("FORBIDDEN", "operator role not permitted"))
	}
}

// GetOperator returns the operator resolved by OperatorAuth
func GetOperator(c *gin.Context) (Operator, bool) {
	v, ok := c.Get(ContextKeyOperator)
	if !ok {
		return Operator{}, false
	}
	op, ok := v.(Operator)
	return op, ok
}

func operatorFromHeaders(c *gin.Context) (Operator, error) {
	id := strings.TrimSpace(c.GetHeader(OperatorIDHeader))
	if id == "" {
		return Operator{}, ErrMissingOperator
	}
	role := strings.ToLower(strings.TrimSpace(c.GetHeader(OperatorRoleHeader)))
	if role == "" {
		role = RoleManager
	}
	return Operator{ID: id, Role: role}, nil
}

func operatorFromToken(header string, cfg OperatorAuthConfig) (Operator, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return Operator{}, ErrMissingOperator
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return Operator{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Operator{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return Operator{}, ErrInvalidToken
	}
	if role == "" {
		role = RoleManager
	}
	return Operator{ID: sub, Role: role}, nil
}

// SignOperatorToken issues an HS256 operator token
func SignOperatorToken(cfg OperatorAuthConfig, op Operator, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  op.ID,
		"role": op.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}
