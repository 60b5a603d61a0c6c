package model

// Workspace 是任务与分类的租户容器。
//
// Creator 保存创建者邮箱，成员关系通过 WorkspaceMember 以邮箱关联。
type Workspace struct {
	ID      uint   `gorm:"primaryKey" json:"id_workspace"`
	Name    string `gorm:"type:varchar(100);not null" json:"nome"`
	IsTeam  bool   `gorm:"not null;default:false" json:"equipe"`
	Creator string `gorm:"type:varchar(191);not null;index" json:"criador"`

	Emails []string `gorm:"-" json:"emails,omitempty"` // 成员邮箱（查询时填充）
}

// TableName 返回工作区表名。
func (Workspace) TableName() string { return "workspaces" }

// WorkspaceMember 是用户与工作区的成员关系。
type WorkspaceMember struct {
	ID          uint   `gorm:"primaryKey"`
	Email       string `gorm:"type:varchar(191);not null;uniqueIndex:idx_member_email_workspace"`
	WorkspaceID uint   `gorm:"not null;uniqueIndex:idx_member_email_workspace;index"`
}

// TableName 返回成员表名。
func (WorkspaceMember) TableName() string { return "usuario_workspace" }

// Category 是工作区内的任务分类。名称在同一工作区内唯一。
type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id_categoria"`
	Name        string `gorm:"type:varchar(100);not null;uniqueIndex:idx_category_workspace_name" json:"nome"`
	Color       string `gorm:"type:varchar(16);not null;default:'#007acc'" json:"cor"`
	WorkspaceID uint   `gorm:"not null;uniqueIndex:idx_category_workspace_name" json:"id_workspace"`
}

// TableName 返回分类表名。
func (Category) TableName() string { return "categorias" }

// DefaultCategoryColor 是未指定颜色时的分类颜色。
const DefaultCategoryColor = "#007acc"
