// Package apperr 定义对外暴露的错误分类，并负责把存储层错误映射为 HTTP 语义。
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind 是错误类别。
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindUnsupported    Kind = "unsupported_operation"
	KindInternal       Kind = "internal"
)

// Error 是业务错误。Message 会原样返回给客户端，Cause 只用于日志。
type Error struct {
	Kind    Kind
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status 返回错误对应的 HTTP 状态码。
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnsupported:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails 返回附带 details 的副本。
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation 输入不合法。
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// Authentication 缺少或无效的凭证。
func Authentication(format string, args ...any) *Error {
	return newf(KindAuthentication, format, args...)
}

// Authorization 权限不足。
func Authorization(format string, args ...any) *Error {
	return newf(KindAuthorization, format, args...)
}

// NotFound 实体不存在。
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Conflict 唯一性冲突或状态冲突。
func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

// Unsupported 不支持的操作组合。
func Unsupported(format string, args ...any) *Error { return newf(KindUnsupported, format, args...) }

// Internal 包装意外错误，客户端只会看到通用消息。
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "Erro interno do servidor", Cause: cause}
}

// From 把任意错误转换为 *Error。
//
// gorm.ErrRecordNotFound 映射为 NotFound；MySQL 1062、Postgres 23505 与
// gorm.ErrDuplicatedKey 映射为 Conflict；其余一律视为 Internal。
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Message: "Registro não encontrado", Cause: err}
	}
	if IsUniqueViolation(err) {
		return &Error{Kind: KindConflict, Message: "Registro duplicado", Cause: err}
	}
	return Internal(err)
}

// IsUniqueViolation 判断错误是否来自唯一约束。
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

// IsKind 判断 err 是否为指定类别。
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
