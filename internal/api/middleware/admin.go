package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
)

// AdminToken 用静态 Bearer 令牌保护管理接口。配置为空时整个命名空间返回 403。
func AdminToken(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			abort(c, 403, "Área administrativa desativada")
			return
		}
		got, ok := bearerToken(c)
		if !ok {
			abort(c, 401, "Token de administrador não fornecido")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			abort(c, 403, "Token de administrador inválido")
			return
		}
		c.Next()
	}
}
