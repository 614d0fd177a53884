package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/procura/internal/audit"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/authorization"
	"github.com/smallbiznis/procura/internal/category"
	categorydomain "github.com/smallbiznis/procura/internal/category/domain"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/item"
	itemdomain "github.com/smallbiznis/procura/internal/item/domain"
	"github.com/smallbiznis/procura/internal/lock"
	"github.com/smallbiznis/procura/internal/notification"
	notificationdomain "github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/notification/realtime"
	"github.com/smallbiznis/procura/internal/observability"
	obsmiddleware "github.com/smallbiznis/procura/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/procura/internal/observability/metrics"
	obstracing "github.com/smallbiznis/procura/internal/observability/tracing"
	"github.com/smallbiznis/procura/internal/organization"
	organizationdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/providers"
	"github.com/smallbiznis/procura/internal/requisition"
	requisitiondomain "github.com/smallbiznis/procura/internal/requisition/domain"
	"github.com/smallbiznis/procura/internal/sequence"
	sequencedomain "github.com/smallbiznis/procura/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	lock.Module,
	providers.Module,
	audit.Module,
	authorization.Module,
	sequence.Module,
	organization.Module,
	category.Module,
	item.Module,
	notification.Module,
	requisition.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	organizationSvc organizationdomain.Service
	sequenceSvc     sequencedomain.Service
	categorySvc     categorydomain.Service
	itemSvc         itemdomain.Service
	requisitionSvc  requisitiondomain.Service
	notificationSvc notificationdomain.Service
	hub             *realtime.Hub
	heartbeat       time.Duration
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc organizationdomain.Service
	SequenceSvc     sequencedomain.Service
	CategorySvc     categorydomain.Service
	ItemSvc         itemdomain.Service
	RequisitionSvc  requisitiondomain.Service
	NotificationSvc notificationdomain.Service
	Hub             *realtime.Hub
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		sequenceSvc:     p.SequenceSvc,
		categorySvc:     p.CategorySvc,
		itemSvc:         p.ItemSvc,
		requisitionSvc:  p.RequisitionSvc,
		notificationSvc: p.NotificationSvc,
		hub:             p.Hub,
		heartbeat:       15 * time.Second,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.IdentityRequired())

	// -------- Organizations (no current organization required) --------
	api.POST("/orgs", s.CreateOrganization)
	api.GET("/orgs", s.ListOrganizations)

	org := api.Group("", s.OrgRequired())

	org.GET("/orgs/current", s.GetCurrentOrganization)
	org.GET("/members", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionMemberView), s.ListMembers)
	org.POST("/members", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionMemberManage), s.AddMember)

	// -------- Sequence --------
	org.GET("/sequence", s.authorizeOrgAction(authorization.ObjectSequence, authorization.ActionSequenceView), s.GetSequence)
	org.PATCH("/sequence", s.authorizeOrgAction(authorization.ObjectSequence, authorization.ActionSequenceConfigure), s.ConfigureSequence)
	org.POST("/sequence/allocate", s.authorizeOrgAction(authorization.ObjectSequence, authorization.ActionSequenceAllocate), s.AllocateSequence)
	org.PUT("/sequence/next", s.authorizeOrgAction(authorization.ObjectSequence, authorization.ActionSequenceOverride), s.SetSequenceNext)

	// -------- Categories --------
	org.GET("/categories", s.authorizeOrgAction(authorization.ObjectCategory, authorization.ActionCategoryView), s.ListCategories)
	org.POST("/categories", s.authorizeOrgAction(authorization.ObjectCategory, authorization.ActionCategoryManage), s.CreateCategory)
	org.GET("/categories/:id", s.authorizeOrgAction(authorization.ObjectCategory, authorization.ActionCategoryView), s.GetCategory)
	org.POST("/categories/:id/deactivate", s.authorizeOrgAction(authorization.ObjectCategory, authorization.ActionCategoryManage), s.DeactivateCategory)
	org.POST("/categories/:id/reactivate", s.authorizeOrgAction(authorization.ObjectCategory, authorization.ActionCategoryManage), s.ReactivateCategory)
	org.DELETE("/categories/:id", s.authorizeOrgAction(authorization.ObjectCategory, authorization.ActionCategoryManage), s.DeleteCategory)

	// -------- Items --------
	org.GET("/items", s.authorizeOrgAction(authorization.ObjectItem, authorization.ActionItemView), s.ListItems)
	org.POST("/items", s.authorizeOrgAction(authorization.ObjectItem, authorization.ActionItemCreate), s.CreateItem)
	org.GET("/items/:id", s.authorizeOrgAction(authorization.ObjectItem, authorization.ActionItemView), s.GetItem)

	// -------- Requisitions --------
	org.GET("/requisitions", s.authorizeOrgAction(authorization.ObjectRequisition, authorization.ActionRequisitionView), s.ListRequisitions)
	org.POST("/requisitions", s.authorizeOrgAction(authorization.ObjectRequisition, authorization.ActionRequisitionCreate), s.CreateRequisition)
	org.GET("/requisitions/:id", s.authorizeOrgAction(authorization.ObjectRequisition, authorization.ActionRequisitionView), s.GetRequisition)
	org.POST("/requisitions/:id/submit", s.authorizeOrgAction(authorization.ObjectRequisition, authorization.ActionRequisitionSubmit), s.SubmitRequisition)
	org.POST("/requisitions/:id/approve", s.authorizeOrgAction(authorization.ObjectRequisition, authorization.ActionRequisitionApprove), s.ApproveRequisition)
	org.POST("/requisitions/:id/reject", s.authorizeOrgAction(authorization.ObjectRequisition, authorization.ActionRequisitionReject), s.RejectRequisition)

	// -------- Notifications --------
	// The inbox is always the caller's own, scoped to the current organization.
	org.GET("/notifications", s.ListNotifications)
	org.GET("/notifications/unread-count", s.UnreadNotificationCount)
	org.POST("/notifications/read-all", s.MarkAllNotificationsRead)
	org.POST("/notifications/clear-all", s.ClearAllNotifications)
	org.POST("/notifications/custom", s.authorizeOrgAction(authorization.ObjectNotification, authorization.ActionNotificationSendCustom), s.SendCustomNotification)
	org.GET("/notifications/stream", s.StreamNotifications)
	org.POST("/notifications/stream/:session_id/org", s.SwitchStreamOrganization)
	org.POST("/notifications/:id/read", s.MarkNotificationRead)
	org.DELETE("/notifications/:id", s.DeleteNotification)

	// -------- Email jobs --------
	org.GET("/email-jobs", s.authorizeOrgAction(authorization.ObjectEmailJob, authorization.ActionEmailJobView), s.ListEmailJobs)
	org.POST("/email-jobs/:id/retrigger", s.authorizeOrgAction(authorization.ObjectEmailJob, authorization.ActionEmailJobRetrigger), s.RetriggerEmailJob)

	// -------- Audit --------
	org.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
