package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/audit/masking"
	"github.com/smallbiznis/procura/internal/clock"
	obscontext "github.com/smallbiznis/procura/internal/observability/context"
	"github.com/smallbiznis/procura/internal/orgcontext"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) AuditLog(ctx context.Context, entry auditdomain.Entry) error {
	return s.AuditLogTx(ctx, s.db, entry)
}

func (s *Service) AuditLogTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	orgID := entry.OrgID
	if orgID == 0 {
		resolved, ok := orgcontext.OrgIDFromContext(ctx)
		if !ok {
			return auditdomain.ErrInvalidOrganization
		}
		orgID = resolved
	}

	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := masking.MaskMetadata(entry.Metadata)
	if payload == nil {
		payload = map[string]any{}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	actorType, actorID := resolveActor(ctx)
	record := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalize(entry.TargetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, tx, &record); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.OrgID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidOrganization
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		OrgID:      req.OrgID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	page, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})

	logs := make([]auditdomain.AuditLog, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func resolveActor(ctx context.Context) (string, *string) {
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		return actorType, normalize(actorID)
	}
	if userID, ok := orgcontext.UserIDFromContext(ctx); ok {
		id := userID.String()
		return string(auditdomain.ActorTypeUser), &id
	}
	return string(auditdomain.ActorTypeSystem), nil
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
