// Package auth 提供注册、登录与注销接口。
package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"noiton/internal/api/middleware"
	"noiton/internal/pkg/apperr"
	"noiton/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler 处理认证相关请求。
type Handler struct {
	users     *service.UserService
	jwtSecret string
	tokenTTL  time.Duration
	denylist  *middleware.TokenDenylist
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(users *service.UserService, jwtSecret string, tokenTTL time.Duration, denylist *middleware.TokenDenylist, logger *slog.Logger) *Handler {
	return &Handler{
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		denylist:  denylist,
		logger:    logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"senha"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// Login 校验邮箱与密码并返回 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteError(c, h.logger, apperr.Validation("Corpo da requisição inválido"))
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		middleware.WriteError(c, h.logger, apperr.Validation("Email e senha são obrigatórios"))
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.IsKind(err, apperr.KindAuthentication) {
			h.logger.Info("login rejected", slog.String("client_ip", c.ClientIP()))
		}
		middleware.WriteError(c, h.logger, err)
		return
	}

	token, err := middleware.IssueToken(h.jwtSecret, h.tokenTTL, user)
	if err != nil {
		middleware.WriteError(c, h.logger, apperr.Internal(err))
		return
	}
	h.logger.Info("user logged in", slog.String("email", user.Email), slog.String("role", user.Role))
	c.JSON(http.StatusOK, tokenResponse{Token: token, Email: user.Email})
}

// Register 创建新用户。
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteError(c, h.logger, apperr.Validation("Corpo da requisição inválido"))
		return
	}
	user, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		middleware.WriteError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Logout 把当前令牌加入注销名单，直到它自然过期。
func (h *Handler) Logout(c *gin.Context) {
	jti, exp := middleware.TokenID(c)
	if err := h.denylist.Revoke(c.Request.Context(), jti, exp); err != nil {
		middleware.WriteError(c, h.logger, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logout realizado com sucesso"})
}
