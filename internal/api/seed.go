package api

import (
	"context"
	"fmt"
	"log/slog"

	"noiton/internal/identity"
	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
	"noiton/internal/service"
)

const (
	demoEmail    = "demo@noiton.app"
	demoPassword = "demo1234"
	demoSpace    = "Workspace de demonstração"
)

// SeedDemoData 在 app.seed_demo 打开时写入演示用户、工作区、分类与任务。
//
// 重复执行是安全的：已存在的用户或工作区不会重复创建。
func (s *Server) SeedDemoData(ctx context.Context) error {
	if !s.cfg.App.SeedDemo {
		return nil
	}
	user, err := s.users.FindByEmail(ctx, demoEmail)
	if err != nil {
		return err
	}
	if user == nil {
		user, err = s.users.Register(ctx, service.RegisterInput{Email: demoEmail, Password: demoPassword, Name: "Demo"})
		if err != nil {
			return fmt.Errorf("seed demo user: %w", err)
		}
	}
	caller := identity.Caller{UserID: user.ID, Email: user.Email, Role: user.Role}

	spaces, err := s.workspaces.List(ctx, caller)
	if err != nil {
		return err
	}
	for _, ws := range spaces {
		if ws.Name == demoSpace {
			return nil
		}
	}

	ws, err := s.workspaces.Create(ctx, caller, service.WorkspaceInput{Name: demoSpace})
	if err != nil {
		return fmt.Errorf("seed demo workspace: %w", err)
	}
	cat, err := s.categories.Create(ctx, caller, service.CategoryInput{Name: "Pessoal", Color: "#22c55e", WorkspaceID: ws.ID})
	if err != nil {
		return fmt.Errorf("seed demo category: %w", err)
	}
	daily := model.RecurrenceDaily
	for _, in := range []service.TaskInput{
		{WorkspaceID: ws.ID, Title: "Conhecer o Noiton", Priority: model.PriorityHigh, Categories: []uint{cat.ID}},
		{WorkspaceID: ws.ID, Title: "Revisar tarefas do dia", Priority: model.PriorityMedium, Recurring: true, Recurrence: &daily},
	} {
		if _, err := s.tasks.Create(ctx, caller, in); err != nil && !apperr.IsKind(err, apperr.KindConflict) {
			return fmt.Errorf("seed demo task: %w", err)
		}
	}
	s.logger.Info("demo data seeded", slog.String("email", demoEmail), slog.Uint64("workspace_id", uint64(ws.ID)))
	return nil
}
