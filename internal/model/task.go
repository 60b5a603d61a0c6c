package model

import "time"

// 任务优先级。
const (
	PriorityLow    = "baixa"
	PriorityMedium = "media"
	PriorityHigh   = "alta"
	PriorityUrgent = "urgente"
)

// 任务状态。
const (
	StatusTodo       = "a_fazer"
	StatusInProgress = "em_andamento"
	StatusDone       = "concluido"
	StatusOverdue    = "atrasada"
)

// 周期任务的重复频率。
const (
	RecurrenceDaily   = "diaria"
	RecurrenceWeekly  = "semanal"
	RecurrenceMonthly = "mensal"
)

// ValidPriority 判断优先级取值是否合法。
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ValidStatus 判断任务状态取值是否合法。
func ValidStatus(s string) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusOverdue:
		return true
	}
	return false
}

// ValidRecurrence 判断重复频率取值是否合法。
func ValidRecurrence(r string) bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Task 表示一个任务。
//
// 任务只有一个拥有者（创建者），但可以通过 TaskWorkspace 关联多个工作区、
// 通过 TaskCategory 关联多个分类。标题在创建时所属的工作区（WorkspaceID）内唯一。
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id_tarefa"`
	CreatedAt   time.Time  `gorm:"index" json:"data_criacao"`
	UpdatedAt   time.Time  `json:"data_atualizacao"`
	Title       string     `gorm:"type:varchar(191);not null;uniqueIndex:idx_task_workspace_title" json:"titulo"`
	Description string     `gorm:"type:text" json:"descricao"`
	DueDate     *time.Time `gorm:"index" json:"data_fim"`
	Priority    string     `gorm:"type:varchar(10);not null;default:media" json:"prioridade"`
	Status      string     `gorm:"type:varchar(20);not null;default:a_fazer;index" json:"status"`
	Done        bool       `gorm:"not null;default:false" json:"concluida"`
	Recurring   bool       `gorm:"not null;default:false" json:"recorrente"`
	Recurrence  *string    `gorm:"type:varchar(10)" json:"recorrencia"`
	OwnerID     uint       `gorm:"not null;index" json:"id_usuario"`
	WorkspaceID uint       `gorm:"not null;uniqueIndex:idx_task_workspace_title" json:"id_workspace"`

	Categories []uint `gorm:"-" json:"categorias"` // 关联的分类 ID（查询时填充）
}

// TableName 返回任务表名。
func (Task) TableName() string { return "tarefas" }

// TaskWorkspace 是任务与工作区的多对多关联表。
type TaskWorkspace struct {
	TaskID      uint `gorm:"primaryKey"`
	WorkspaceID uint `gorm:"primaryKey;index"`
}

// TableName 返回关联表名。
func (TaskWorkspace) TableName() string { return "tarefa_workspace" }

// TaskCategory 是任务与分类的多对多关联表。
type TaskCategory struct {
	TaskID     uint `gorm:"primaryKey"`
	CategoryID uint `gorm:"primaryKey;index"`
}

// TableName 返回关联表名。
func (TaskCategory) TableName() string { return "tarefa_categoria" }

// TaskPermission 是用户在任务上的显式授权。
//
// AccessLevel: 0 拥有者 / 1 编辑者 / 2 查看者。
type TaskPermission struct {
	TaskID      uint      `gorm:"primaryKey" json:"id_tarefa"`
	UserID      uint      `gorm:"primaryKey;index" json:"id_usuario"`
	AccessLevel int       `gorm:"not null" json:"nivel_acesso"`
	CreatedAt   time.Time `json:"data_criacao"`
}

// TableName 返回授权表名。
func (TaskPermission) TableName() string { return "tarefa_permissoes" }

// Comment 是任务下的评论，只能由作者修改或删除。
type Comment struct {
	ID          uint      `gorm:"primaryKey" json:"id_comentario"`
	AuthorEmail string    `gorm:"type:varchar(191);not null;index" json:"email"`
	TaskID      uint      `gorm:"not null;index" json:"id_tarefa"`
	Body        string    `gorm:"type:text;not null" json:"descricao"`
	CreatedAt   time.Time `json:"data_criacao"`
	UpdatedAt   time.Time `json:"data_atualizacao"`
}

// TableName 返回评论表名。
func (Comment) TableName() string { return "comentarios" }

// 附件类型。
const (
	AttachmentPDF   = "pdf"
	AttachmentImage = "imagem"
)

// Attachment 是任务附件。每个任务每种类型最多一个。
type Attachment struct {
	ID           uint      `gorm:"primaryKey" json:"id_anexo"`
	TaskID       uint      `gorm:"not null;uniqueIndex:idx_attachment_task_kind" json:"id_tarefa"`
	Kind         string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_attachment_task_kind" json:"tipo_arquivo"`
	StoredName   string    `gorm:"type:varchar(255);not null" json:"nome_arquivo"`
	OriginalName string    `gorm:"type:varchar(255);not null" json:"nome_original"`
	ContentType  string    `gorm:"type:varchar(100)" json:"mime_type"`
	Size         int64     `gorm:"not null" json:"tamanho_arquivo"`
	Path         string    `gorm:"type:varchar(500);not null" json:"caminho_arquivo"`
	CreatedAt    time.Time `json:"data_upload"`
	UpdatedAt    time.Time `json:"data_atualizacao"`
}

// TableName 返回附件表名。
func (Attachment) TableName() string { return "anexos_tarefa" }
