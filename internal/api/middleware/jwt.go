package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"noiton/internal/identity"
	"noiton/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ctxTokenID     = "jti"
	ctxTokenExpiry = "token_exp"
)

// Claims 是 JWT 载荷。
type Claims struct {
	jwt.RegisteredClaims
	UserID uint   `json:"id_usuario"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IssueToken 为用户签发 HS256 JWT，每个令牌带唯一 jti 以便注销。
func IssueToken(secret string, ttl time.Duration, user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken 校验签名与有效期并返回载荷。
func ParseToken(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == 0 || claims.Email == "" {
		return nil, errors.New("invalid token subject")
	}
	return claims, nil
}

// AuthMiddleware 校验 Bearer JWT，把调用方身份写入请求 context。
//
// denylist 可以为 nil；不为 nil 时拒绝已注销的令牌。
func AuthMiddleware(jwtSecret string, denylist *TokenDenylist) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			abort(c, 401, "Token não fornecido")
			return
		}
		claims, err := ParseToken(jwtSecret, tokenStr)
		if err != nil {
			abort(c, 401, "Token inválido ou expirado")
			return
		}
		if denylist != nil && denylist.IsRevoked(c.Request.Context(), claims.ID) {
			abort(c, 401, "Token revogado")
			return
		}

		caller := identity.Caller{
			UserID: claims.UserID,
			Email:  strings.ToLower(claims.Email),
			Role:   strings.ToLower(strings.TrimSpace(claims.Role)),
		}
		c.Request = c.Request.WithContext(identity.WithCaller(c.Request.Context(), caller))
		c.Set(ctxTokenID, claims.ID)
		if claims.ExpiresAt != nil {
			c.Set(ctxTokenExpiry, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

// RequireModerator 只允许 moderator 角色通过，需要放在 AuthMiddleware 之后。
func RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := identity.FromContext(c.Request.Context())
		if !ok || !caller.IsModerator() {
			abort(c, 403, "Acesso restrito a moderadores")
			return
		}
		c.Next()
	}
}

// Caller 返回 AuthMiddleware 写入的调用方。
func Caller(c *gin.Context) identity.Caller {
	caller, _ := identity.FromContext(c.Request.Context())
	return caller
}

// TokenID 返回当前令牌的 jti 与过期时间。
func TokenID(c *gin.Context) (string, time.Time) {
	jti := c.GetString(ctxTokenID)
	exp, _ := c.Get(ctxTokenExpiry)
	t, _ := exp.(time.Time)
	return jti, t
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
