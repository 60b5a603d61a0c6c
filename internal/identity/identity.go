// Package identity 保存经过认证的调用方身份。
package identity

import "context"

// Caller 是经过 JWT 认证的调用方。
type Caller struct {
	UserID uint
	Email  string
	Role   string
}

// IsModerator 判断调用方是否为审核员。
func (c Caller) IsModerator() bool { return c.Role == "moderator" }

type ctxKey struct{}

// WithCaller 把调用方写入 context。
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext 从 context 读取调用方。
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok && c.UserID != 0
}
