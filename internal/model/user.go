package model

import "time"

// 用户角色。
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
)

// User 表示系统用户。
//
// Points 只在任务首次完成时由任务服务累加。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id_usuario"`                           // 用户 ID
	Email     string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`    // 邮箱（唯一）
	Password  string    `gorm:"not null" json:"-"`                                      // bcrypt 哈希
	Phone     *string   `gorm:"type:varchar(20);uniqueIndex" json:"telefone,omitempty"` // 手机号（可选，唯一）
	Name      string    `gorm:"type:varchar(100);not null" json:"nome"`                 // 显示名称
	Points    float64   `gorm:"not null;default:0" json:"pontos"`                       // 完成任务获得的积分
	Role      string    `gorm:"type:varchar(16);not null;default:user" json:"role"`     // 角色: user / moderator
	CreatedAt time.Time `json:"data_criacao"`                                           // 创建时间
}

// TableName 返回用户表名。
func (User) TableName() string { return "usuarios" }
