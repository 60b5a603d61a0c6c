package model

import "time"

// 举报状态。pendente 之外的状态都是终态。
const (
	ReportPending  = "pendente"
	ReportReviewed = "analisada"
	ReportRejected = "rejeitada"
	ReportApproved = "aprovada"
)

// ReportStatuses 按固定顺序列出所有举报状态，用于统计补零。
var ReportStatuses = []string{ReportPending, ReportReviewed, ReportRejected, ReportApproved}

// ValidReportStatus 判断举报状态取值是否合法。
func ValidReportStatus(s string) bool {
	for _, v := range ReportStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Report 表示用户对任务的举报（denúncia）。
//
// 同一用户对同一任务只能举报一次。
type Report struct {
	ID             uint       `gorm:"primaryKey" json:"id_denuncia"`
	TaskID         uint       `gorm:"not null;uniqueIndex:idx_report_task_reporter;index" json:"id_tarefa"`
	ReporterID     uint       `gorm:"not null;uniqueIndex:idx_report_task_reporter" json:"id_usuario_denunciante"`
	Reason         string     `gorm:"type:text;not null" json:"motivo"`
	Status         string     `gorm:"type:varchar(20);not null;default:pendente;index" json:"status"`
	CreatedAt      time.Time  `json:"data_criacao"`
	ReviewedAt     *time.Time `json:"data_analise"`
	ModeratorID    *uint      `json:"id_moderador"`
	ModeratorNotes string     `gorm:"type:text" json:"observacoes_moderador"`
}

// TableName 返回举报表名。
func (Report) TableName() string { return "denuncias" }
