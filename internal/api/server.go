// Package api 组装 HTTP 路由并把请求转交给业务服务。
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"noiton/internal/access"
	"noiton/internal/api/auth"
	"noiton/internal/api/middleware"
	"noiton/internal/api/scheduler"
	"noiton/internal/config"
	"noiton/internal/offlinesync"
	"noiton/internal/pkg/apperr"
	"noiton/internal/pkg/blob"
	"noiton/internal/pkg/dedup"
	"noiton/internal/pkg/metrics"
	"noiton/internal/pkg/notify"
	"noiton/internal/pkg/queue"
	"noiton/internal/pkg/ratelimit"
	"noiton/internal/search"
	"noiton/internal/service"
	"noiton/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps 是 Server 依赖的外部资源，由 NewServer 打开或由测试注入。
type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Blobs  blob.Store
	Search *search.Service // 可以为 nil
	Mail   notify.Sender
}

// Server 封装了 API 服务所需的依赖和路由处理。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	search *search.Service
	router *gin.Engine

	store       *store.Store
	users       *service.UserService
	tasks       *service.TaskService
	permissions *service.PermissionService
	workspaces  *service.WorkspaceService
	categories  *service.CategoryService
	comments    *service.CommentService
	attachments *service.AttachmentService
	reports     *service.ReportService
	admin       *service.AdminService
	sync        *offlinesync.Reconciler

	auth       *auth.Handler
	denylist   *middleware.TokenDenylist
	loginLimit *ratelimit.Limiter
	syncLimit  *ratelimit.Limiter

	pool  *queue.Pool
	sched *scheduler.Scheduler
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化附件存储与检索索引
// 4. 组装业务服务与 Gin 路由
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	var meili *search.Meili
	if cfg.Search.Enabled {
		meili = search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliKey, cfg.Search.Index, logger)
	}

	return New(cfg, Deps{
		DB:     db,
		Redis:  rdb,
		Blobs:  blobs,
		Search: search.NewService(meili, logger),
		Mail:   notify.NewEmailSender(cfg.Email, logger),
	}, logger)
}

// New 使用已打开的资源组装服务器。
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	metrics.InitMetrics()

	st := store.New(deps.DB)
	ev := access.NewEvaluator(st)

	// 避免把 nil *search.Service 装进非 nil 接口。
	var index service.TaskIndex
	if deps.Search != nil {
		index = deps.Search
	}

	pool := queue.NewPool(logger, cfg.App.WorkerPoolSize, cfg.App.QueueCapacity, 30*time.Second)
	mailLimit := ratelimit.NewLimiter(deps.Redis, logger, "mail", cfg.App.MailRateLimit, cfg.App.MailRateBurst)
	var notifier service.ReportNotifier
	if deps.Mail != nil {
		notifier = notify.NewReportMailer(deps.Mail, pool, mailLimit, cfg.App.ModeratorEmails, logger)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     deps.DB,
		rdb:    deps.Redis,
		search: deps.Search,
		store:  st,
		pool:   pool,
	}
	s.users = service.NewUserService(st, cfg.App.ModeratorEmails, logger)
	s.tasks = service.NewTaskService(st, ev, deps.Blobs, index, logger)
	s.permissions = service.NewPermissionService(st, ev, logger)
	s.workspaces = service.NewWorkspaceService(st, deps.Blobs, logger)
	s.categories = service.NewCategoryService(st, logger)
	s.comments = service.NewCommentService(st, ev, logger)
	s.attachments = service.NewAttachmentService(st, ev, deps.Blobs, logger)
	s.reports = service.NewReportService(st, s.tasks, notifier, logger)
	s.admin = service.NewAdminService(st, s.tasks, s.reports, logger)
	s.sync = offlinesync.NewReconciler(st, offlinesync.Services{
		Users:       s.users,
		Tasks:       s.tasks,
		Categories:  s.categories,
		Workspaces:  s.workspaces,
		Comments:    s.comments,
		Attachments: s.attachments,
	}, dedup.NewGuard(deps.Redis, cfg.App.SyncReplayTTL), logger)

	s.denylist = middleware.NewTokenDenylist(deps.Redis, logger)
	s.loginLimit = ratelimit.NewLimiter(deps.Redis, logger, "login", cfg.App.LoginRateLimit, cfg.App.LoginRateBurst)
	s.syncLimit = ratelimit.NewLimiter(deps.Redis, logger, "sync", cfg.App.SyncRateLimit, cfg.App.SyncRateBurst)
	s.auth = auth.NewHandler(s.users, cfg.Security.JWTSecret, cfg.Security.TokenTTL, s.denylist, logger)

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(st, index, cfg.Scheduler, logger)
		if err != nil {
			return nil, err
		}
		s.sched = sched
	}

	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.App.CORSOrigins)))
	if cfg.App.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.App.MaxUploadBytes
	}
	s.router = r
	s.registerRoutes()
	return s, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Request-ID")
	c.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	return c
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartBackground 启动通知任务池与定时调度器，ctx 取消后它们停止。
func (s *Server) StartBackground(ctx context.Context) {
	s.pool.Start(ctx)
	if s.sched == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in scheduler", slog.Any("panic", r))
			}
		}()
		s.sched.Run(ctx)
	}()
}

// Close 等待通知发送完毕，然后关闭检索、数据库与缓存连接。
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.search.Close()
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			errs = append(errs, err)
		} else if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API de Gerenciamento de Tarefas - Noiton"})
	})
	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/auth/login", middleware.RateLimit(s.loginLimit, middleware.ByClientIP, s.logger), s.auth.Login)
	r.POST("/usuarios", s.auth.Register)

	authed := r.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret, s.denylist))
	authed.POST("/auth/logout", s.auth.Logout)
	authed.GET("/usuarios/me", s.handleGetMe)
	authed.PUT("/usuarios/me", s.handleUpdateMe)

	authed.POST("/workspaces", s.handleCreateWorkspace)
	authed.GET("/workspaces", s.handleListWorkspaces)
	authed.GET("/workspaces/:id", s.handleGetWorkspace)
	authed.PUT("/workspaces/:id", s.handleUpdateWorkspace)
	authed.DELETE("/workspaces/:id", s.handleDeleteWorkspace)
	authed.POST("/workspaces/:id/membros", s.handleAddMember)
	authed.DELETE("/workspaces/:id/membros/:email", s.handleRemoveMember)

	authed.POST("/categorias", s.handleCreateCategory)
	authed.GET("/categorias", s.handleListCategories)
	authed.PUT("/categorias/:id", s.handleUpdateCategory)
	authed.DELETE("/categorias/:id", s.handleDeleteCategory)

	authed.POST("/tarefas", s.handleCreateTask)
	authed.GET("/tarefas/acessiveis", s.handleListAccessible)
	authed.GET("/tarefas/workspace/:id_workspace", s.handleListWorkspaceTasks)
	authed.GET("/tarefas/workspace/:id_workspace/filtros", s.handleFilterTasks)
	authed.GET("/tarefas/workspace/:id_workspace/tarefa/:id_tarefa", s.handleGetTask)
	authed.PUT("/tarefas/:id_tarefa", s.handleUpdateTask)
	authed.DELETE("/tarefas/:id_tarefa", s.handleDeleteTask)
	authed.POST("/tarefas/:id_tarefa/categorias", s.handleAssociateCategories)
	authed.GET("/tarefas/:id_tarefa/categorias", s.handleTaskCategories)
	authed.DELETE("/tarefas/:id_tarefa/categorias", s.handleRemoveCategories)
	authed.DELETE("/tarefas/:id_tarefa/categorias/:id_categoria", s.handleRemoveCategories)
	authed.POST("/tarefas/:id_tarefa/workspace", s.handleLinkWorkspace)
	authed.DELETE("/tarefas/:id_tarefa/workspace/:id_workspace", s.handleUnlinkWorkspace)

	authed.POST("/tarefas/:id_tarefa/permissoes", s.handleGrant)
	authed.GET("/tarefas/:id_tarefa/permissoes", s.handleListGrants)
	authed.DELETE("/tarefas/:id_tarefa/permissoes/:id_usuario", s.handleRevoke)
	authed.GET("/tarefas/:id_tarefa/minha-permissao", s.handleMyPermission)

	authed.POST("/comentarios", s.handleCreateComment)
	authed.GET("/comentarios/tarefa/:id_tarefa", s.handleListComments)
	authed.PUT("/comentarios/:id", s.handleUpdateComment)
	authed.DELETE("/comentarios/:id", s.handleDeleteComment)

	authed.POST("/tarefa/:id_tarefa/anexo", s.handleUploadAttachment(false))
	authed.PUT("/tarefa/:id_tarefa/anexo", s.handleUploadAttachment(true))
	authed.GET("/tarefa/:id_tarefa/anexos", s.handleListAttachments)
	authed.GET("/anexo/:id/download", s.handleDownloadAttachment)
	authed.DELETE("/anexo/:id", s.handleDeleteAttachment)

	authed.POST("/denuncias", s.handleSubmitReport)
	authed.GET("/denuncias", s.handleListReports)
	authed.GET("/denuncias/estatisticas", s.handleReportStats)
	authed.GET("/denuncias/tarefa/:id_tarefa", s.handleReportsByTask)
	authed.GET("/denuncias/:id", s.handleGetReport)
	authed.PUT("/denuncias/:id/status", middleware.RequireModerator(), s.handleModerateReport)

	syncLimited := middleware.RateLimit(s.syncLimit, middleware.ByCaller, s.logger)
	authed.POST("/sync/offline", syncLimited, s.handleSyncOffline)
	authed.GET("/sync/dados", syncLimited, s.handleSyncSnapshot)

	admin := r.Group("/admin")
	admin.Use(middleware.AdminToken(s.cfg.Security.AdminToken))
	admin.GET("/dashboard", s.handleAdminDashboard)
	admin.GET("/denuncias", s.handleAdminReports)
	admin.PUT("/denuncias/:id/status", s.handleAdminTransition)
	admin.POST("/denuncias/:id/aprovar", s.handleAdminApprove)
	admin.DELETE("/denuncias/:id/rejeitar", s.handleAdminReject)
	admin.GET("/tarefas", s.handleAdminTasks)
	admin.DELETE("/tarefas/:id_tarefa", s.handleAdminDeleteTask)
	admin.GET("/usuarios", s.handleAdminUsers)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "database"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "redis"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) fail(c *gin.Context, err error) {
	middleware.WriteError(c, s.logger, err)
}

// bindJSON 解析请求体，失败时写出 400 并返回 false。
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, apperr.Validation("Corpo da requisição inválido"))
		return false
	}
	return true
}

// pathID 解析路径参数中的正整数 ID，失败时写出 400 并返回 false。
func (s *Server) pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		s.fail(c, apperr.Validation("Parâmetro %s inválido", name))
		return 0, false
	}
	return uint(v), true
}

// queryID 解析可选的查询参数 ID，缺省为 0。
func (s *Server) queryID(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		s.fail(c, apperr.Validation("Parâmetro %s inválido", name))
		return 0, false
	}
	return uint(v), true
}
