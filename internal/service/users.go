package service

import (
	"context"
	"log/slog"
	"strings"

	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
	"noiton/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength 是注册与修改密码时的最短密码长度。
const MinPasswordLength = 6

// RegisterInput 是注册请求体。
type RegisterInput struct {
	Email    string  `json:"email"`
	Password string  `json:"senha"`
	Phone    *string `json:"telefone"`
	Name     string  `json:"nome"`
}

// ProfilePatch 是个人资料的稀疏更新，空值保持不变。
type ProfilePatch struct {
	Password *string `json:"senha"`
	Phone    *string `json:"telefone"`
	Name     *string `json:"nome"`
}

// UserService 管理用户注册、认证与个人资料。
type UserService struct {
	store      *store.Store
	moderators map[string]struct{}
	logger     *slog.Logger
}

// NewUserService 创建用户服务。moderatorEmails 中的邮箱注册后获得 moderator 角色。
func NewUserService(st *store.Store, moderatorEmails []string, logger *slog.Logger) *UserService {
	mods := make(map[string]struct{}, len(moderatorEmails))
	for _, e := range moderatorEmails {
		if e = normalizeEmail(e); e != "" {
			mods[e] = struct{}{}
		}
	}
	return &UserService{store: st, moderators: mods, logger: logger}
}

// Register 创建新用户，密码以 bcrypt 哈希保存。
//
// 返回值:
//   - *model.User: 新用户
//   - error: 字段缺失返回 Validation，邮箱或手机号重复返回 Conflict
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Validation("Email inválido")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperr.Validation("A senha deve ter pelo menos %d caracteres", MinPasswordLength)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("O nome é obrigatório")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	user := &model.User{
		Email:    email,
		Password: string(hash),
		Phone:    trimmedOrNil(in.Phone),
		Name:     name,
		Role:     s.roleFor(email),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, &apperr.Error{Kind: apperr.KindConflict, Message: "Email ou telefone já cadastrado", Cause: err}
		}
		return nil, apperr.Internal(err)
	}
	s.logger.Info("user registered", slog.String("email", email), slog.String("role", user.Role))
	return user, nil
}

// Authenticate 校验邮箱与密码。邮箱不存在与密码错误返回同一个 Authentication 错误。
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, apperr.Authentication("Credenciais inválidas")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperr.Authentication("Credenciais inválidas")
	}
	return user, nil
}

// Get 按 ID 返回用户。
func (s *UserService) Get(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "Usuário não encontrado")
	}
	return user, nil
}

// FindByEmail 按邮箱查询用户，不存在时返回 (nil, nil)。
func (s *UserService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// UpdateProfile 修改调用方自己的资料。
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, p ProfilePatch) (*model.User, error) {
	updates := map[string]interface{}{}
	if p.Password != nil && *p.Password != "" {
		if len(*p.Password) < MinPasswordLength {
			return nil, apperr.Validation("A senha deve ter pelo menos %d caracteres", MinPasswordLength)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*p.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		updates["password"] = string(hash)
	}
	if phone := trimmedOrNil(p.Phone); phone != nil {
		updates["phone"] = *phone
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		updates["name"] = strings.TrimSpace(*p.Name)
	}
	if len(updates) > 0 {
		if err := s.store.UpdateUser(ctx, userID, updates); err != nil {
			if apperr.IsUniqueViolation(err) {
				return nil, &apperr.Error{Kind: apperr.KindConflict, Message: "Telefone já cadastrado", Cause: err}
			}
			return nil, apperr.Internal(err)
		}
	}
	return s.Get(ctx, userID)
}

func (s *UserService) roleFor(email string) string {
	if _, ok := s.moderators[email]; ok {
		return model.RoleModerator
	}
	return model.RoleUser
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
