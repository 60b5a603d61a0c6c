package offlinesync

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"noiton/internal/identity"
	"noiton/internal/pkg/apperr"
	"noiton/internal/service"
)

func (r *Reconciler) user(ctx context.Context, _ identity.Caller, opType string, payload json.RawMessage) (any, error) {
	switch opType {
	case OpCreate:
		var in service.RegisterInput
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		existing, err := r.svc.Users.FindByEmail(ctx, in.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return map[string]any{"message": "Usuário já existe", "email": existing.Email, "skipped": true}, nil
		}
		u, err := r.svc.Users.Register(ctx, in)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Usuário criado com sucesso", "email": u.Email}, nil
	case OpUpdate, OpDelete:
		return nil, apperr.Unsupported("Operações UPDATE e DELETE para usuário não são suportadas")
	default:
		return nil, invalidOp(opType)
	}
}

type taskUpdatePayload struct {
	ID uint `json:"id_tarefa"`
	service.TaskPatch
}

func (r *Reconciler) task(ctx context.Context, caller identity.Caller, opType string, payload json.RawMessage) (any, error) {
	switch opType {
	case OpCreate:
		var in service.TaskInput
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		t, err := r.svc.Tasks.Create(ctx, caller, in)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Tarefa criada com sucesso", "id_tarefa": t.ID}, nil
	case OpUpdate:
		var in taskUpdatePayload
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		if in.ID == 0 {
			return nil, apperr.Validation("id_tarefa é obrigatório")
		}
		res, err := r.svc.Tasks.Update(ctx, caller, in.ID, in.TaskPatch)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Tarefa atualizada com sucesso", "id_tarefa": in.ID, "pontos_ganhos": res.PointsAwarded}, nil
	case OpDelete:
		var in struct {
			ID uint `json:"id_tarefa"`
		}
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		if err := r.svc.Tasks.DeleteOrDeny(ctx, caller, in.ID); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Tarefa deletada com sucesso", "id_tarefa": in.ID, "deletada": true}, nil
	default:
		return nil, invalidOp(opType)
	}
}

type categoryPayload struct {
	ID uint `json:"id_categoria"`
	service.CategoryInput
}

func (r *Reconciler) category(ctx context.Context, caller identity.Caller, opType string, payload json.RawMessage) (any, error) {
	var in categoryPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	switch opType {
	case OpCreate:
		c, err := r.svc.Categories.Create(ctx, caller, in.CategoryInput)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Categoria criada com sucesso", "id_categoria": c.ID, "nome": c.Name, "id_workspace": c.WorkspaceID}, nil
	case OpUpdate:
		if _, err := r.svc.Categories.Update(ctx, caller, in.ID, in.CategoryInput); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Categoria atualizada com sucesso", "id_categoria": in.ID}, nil
	case OpDelete:
		if err := r.svc.Categories.Delete(ctx, caller, in.ID, in.WorkspaceID); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Categoria deletada com sucesso", "id_categoria": in.ID, "deletada": true}, nil
	default:
		return nil, invalidOp(opType)
	}
}

type workspacePayload struct {
	ID      uint   `json:"id_workspace"`
	Creator string `json:"criador"`
	service.WorkspaceInput
}

func (r *Reconciler) workspace(ctx context.Context, caller identity.Caller, opType string, payload json.RawMessage) (any, error) {
	var in workspacePayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	switch opType {
	case OpCreate:
		ws, err := r.svc.Workspaces.Create(ctx, caller, in.WorkspaceInput)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Workspace criado com sucesso", "id_workspace": ws.ID, "nome": ws.Name}, nil
	case OpUpdate:
		if !strings.EqualFold(strings.TrimSpace(in.Creator), caller.Email) {
			return nil, apperr.Authorization("Apenas o criador pode atualizar o workspace")
		}
		var patch service.WorkspacePatch
		if err := decode(payload, &patch); err != nil {
			return nil, err
		}
		ws, err := r.svc.Workspaces.Update(ctx, caller, in.ID, patch)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Workspace atualizado com sucesso", "id_workspace": ws.ID, "nome": ws.Name}, nil
	case OpDelete:
		if !strings.EqualFold(strings.TrimSpace(in.Creator), caller.Email) {
			return nil, apperr.Authorization("Apenas o criador pode deletar o workspace")
		}
		if err := r.svc.Workspaces.Delete(ctx, caller, in.ID); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Workspace deletado com sucesso", "id_workspace": in.ID, "deletado": true}, nil
	default:
		return nil, invalidOp(opType)
	}
}

type commentPayload struct {
	ID    uint   `json:"id_comentario"`
	Email string `json:"email"`
	service.CommentInput
}

func (r *Reconciler) comment(ctx context.Context, caller identity.Caller, opType string, payload json.RawMessage) (any, error) {
	var in commentPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	if opType != OpCreate && !strings.EqualFold(strings.TrimSpace(in.Email), caller.Email) {
		return nil, apperr.Authorization("Apenas o autor pode modificar o comentário")
	}
	switch opType {
	case OpCreate:
		c, err := r.svc.Comments.Create(ctx, caller, in.CommentInput)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Comentário criado com sucesso", "id_comentario": c.ID, "id_tarefa": c.TaskID}, nil
	case OpUpdate:
		if _, err := r.svc.Comments.Update(ctx, caller, in.ID, in.Body); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Comentário atualizado com sucesso", "id_comentario": in.ID}, nil
	case OpDelete:
		if err := r.svc.Comments.Delete(ctx, caller, in.ID); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Comentário deletado com sucesso", "id_comentario": in.ID, "deletado": true}, nil
	default:
		return nil, invalidOp(opType)
	}
}

type attachmentPayload struct {
	ID           uint   `json:"id_anexo"`
	TaskID       uint   `json:"id_tarefa"`
	OriginalName string `json:"nome_original"`
	ContentType  string `json:"mime_type"`
	Content      string `json:"conteudo_base64"`
}

func (r *Reconciler) attachment(ctx context.Context, caller identity.Caller, opType string, payload json.RawMessage) (any, error) {
	var in attachmentPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	switch opType {
	case OpCreate:
		body, err := base64.StdEncoding.DecodeString(in.Content)
		if err != nil || len(body) == 0 {
			return nil, apperr.Validation("conteudo_base64 inválido ou vazio")
		}
		a, err := r.svc.Attachments.Upload(ctx, caller, in.TaskID, service.Upload{
			Filename:    in.OriginalName,
			ContentType: in.ContentType,
			Size:        int64(len(body)),
			Body:        bytes.NewReader(body),
		}, false)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": "Anexo criado com sucesso", "anexo": a}, nil
	case OpDelete:
		if err := r.svc.Attachments.Delete(ctx, caller, in.ID); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Anexo deletado com sucesso", "id_anexo": in.ID}, nil
	default:
		return nil, invalidOp(opType)
	}
}

type linkPayload struct {
	Email       string `json:"email"`
	TaskID      uint   `json:"id_tarefa"`
	WorkspaceID uint   `json:"id_workspace"`
	CategoryID  uint   `json:"id_categoria"`
}

func (r *Reconciler) workspaceMember(ctx context.Context, caller identity.Caller, opType string, payload json.RawMessage) (any, error) {
	var in linkPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	switch opType {
	case OpCreate:
		if err := r.svc.Workspaces.AddMember(ctx, caller, in.WorkspaceID, in.Email); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Usuário adicionado ao workspace", "email": in.Email, "id_workspace": in.WorkspaceID}, nil
	case OpDelete:
		if err := r.svc.Workspaces.RemoveMember(ctx, caller, in.WorkspaceID, in.Email); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Usuário removido do workspace", "email": in.Email, "id_workspace": in.WorkspaceID}, nil
	default:
		return nil, unsupportedLink(opType, "usuario_workspace")
	}
}

func (r *Reconciler) taskWorkspace(ctx context.Context, caller identity.Caller, opType string, payload json.RawMessage) (any, error) {
	var in linkPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	switch opType {
	case OpCreate:
		if err := r.svc.Tasks.LinkWorkspace(ctx, caller, in.TaskID, in.WorkspaceID); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Tarefa associada ao workspace", "id_tarefa": in.TaskID, "id_workspace": in.WorkspaceID}, nil
	case OpDelete:
		if err := r.svc.Tasks.UnlinkWorkspace(ctx, caller, in.TaskID, in.WorkspaceID); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Tarefa removida do workspace", "id_tarefa": in.TaskID, "id_workspace": in.WorkspaceID}, nil
	default:
		return nil, unsupportedLink(opType, "tarefa_workspace")
	}
}

func (r *Reconciler) taskCategory(ctx context.Context, _ identity.Caller, opType string, payload json.RawMessage) (any, error) {
	var in linkPayload
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	if in.CategoryID == 0 && (opType == OpCreate || opType == OpDelete) {
		return nil, apperr.Validation("id_categoria é obrigatório")
	}
	switch opType {
	case OpCreate:
		if err := r.svc.Tasks.AssociateCategories(ctx, in.TaskID, []uint{in.CategoryID}); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Categoria associada à tarefa", "id_tarefa": in.TaskID, "id_categoria": in.CategoryID}, nil
	case OpDelete:
		if err := r.svc.Tasks.RemoveCategories(ctx, in.TaskID, in.CategoryID); err != nil {
			return nil, err
		}
		return map[string]any{"message": "Categoria removida da tarefa", "id_tarefa": in.TaskID, "id_categoria": in.CategoryID}, nil
	default:
		return nil, unsupportedLink(opType, "tarefa_categoria")
	}
}

func unsupportedLink(opType, entity string) error {
	return apperr.Unsupported("Operação %s não suportada para %s", opType, entity)
}
