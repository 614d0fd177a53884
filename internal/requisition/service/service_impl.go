package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/clock"
	notificationdomain "github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/observability/logger"
	"github.com/smallbiznis/procura/internal/requisition/domain"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	GenID  *snowflake.Node
	Clock  clock.Clock
	Audit  auditdomain.Service
	Router notificationdomain.Router
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	genID  *snowflake.Node
	clock  clock.Clock
	audit  auditdomain.Service
	router notificationdomain.Router
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("requisition.service"),
		repo:   p.Repo,
		genID:  p.GenID,
		clock:  p.Clock,
		audit:  p.Audit,
		router: p.Router,
	}
}

func (s *Service) Create(ctx context.Context, orgID, userID snowflake.ID, req domain.CreateRequest) (*domain.Requisition, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > 255 {
		return nil, domain.ErrInvalidTitle
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	requisition := &domain.Requisition{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount.Round(4),
		Currency:    currency,
		Status:      domain.StatusDraft,
		RequesterID: userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, requisition); err != nil {
		return nil, err
	}
	return requisition, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*domain.Requisition, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	requisition, err := s.repo.Get(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if requisition == nil {
		return nil, domain.ErrNotFound
	}
	return requisition, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, req domain.ListRequest) ([]domain.Requisition, pagination.PageInfo, error) {
	if orgID == 0 {
		return nil, pagination.PageInfo{}, domain.ErrInvalidOrganization
	}
	status := domain.Status(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if status != "" && !status.Valid() {
		return nil, pagination.PageInfo{}, domain.ErrInvalidStatus
	}

	var cursor *domain.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, pagination.PageInfo{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return nil, pagination.PageInfo{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return nil, pagination.PageInfo{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Limit()
	rows, err := s.repo.List(ctx, s.db, domain.ListFilter{
		OrgID:  orgID,
		Status: status,
		Cursor: cursor,
		Limit:  limit + 1,
	})
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	page, info := pagination.BuildCursorPageInfo(rows, limit, func(r domain.Requisition) pagination.Cursor {
		return pagination.Cursor{ID: r.ID.String(), CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})
	return page, info, nil
}

func (s *Service) Submit(ctx context.Context, orgID, userID, id snowflake.ID) (*domain.TransitionResult, error) {
	return s.transition(ctx, transition{
		orgID:  orgID,
		userID: userID,
		id:     id,
		from:   domain.StatusDraft,
		to:     domain.StatusSubmitted,
		action: auditdomain.ActionRequisitionSubmitted,
		kind:   notificationdomain.KindSubmitted,
		check: func(r *domain.Requisition) error {
			if r.RequesterID != userID {
				return domain.ErrNotRequester
			}
			return nil
		},
	})
}

func (s *Service) Approve(ctx context.Context, orgID, userID, id snowflake.ID, req domain.DecisionRequest) (*domain.TransitionResult, error) {
	return s.transition(ctx, s.decision(orgID, userID, id, domain.StatusApproved, req))
}

func (s *Service) Reject(ctx context.Context, orgID, userID, id snowflake.ID, req domain.DecisionRequest) (*domain.TransitionResult, error) {
	return s.transition(ctx, s.decision(orgID, userID, id, domain.StatusRejected, req))
}

type transition struct {
	orgID  snowflake.ID
	userID snowflake.ID
	id     snowflake.ID
	from   domain.Status
	to     domain.Status
	note   string
	action string
	kind   notificationdomain.Kind
	check  func(r *domain.Requisition) error
}

func (s *Service) decision(orgID, userID, id snowflake.ID, to domain.Status, req domain.DecisionRequest) transition {
	t := transition{
		orgID:  orgID,
		userID: userID,
		id:     id,
		from:   domain.StatusSubmitted,
		to:     to,
		note:   strings.TrimSpace(req.Note),
		action: auditdomain.ActionRequisitionApproved,
		kind:   notificationdomain.KindApproved,
		check: func(r *domain.Requisition) error {
			if r.RequesterID == userID {
				return domain.ErrSelfDecision
			}
			return nil
		},
	}
	if to == domain.StatusRejected {
		t.action = auditdomain.ActionRequisitionRejected
		t.kind = notificationdomain.KindRejected
	}
	return t
}

// transition commits a status change with its audit entry, then notifies.
// Once committed the change stands even if notifying fails.
func (s *Service) transition(ctx context.Context, t transition) (*domain.TransitionResult, error) {
	if t.orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if t.userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	var updated *domain.Requisition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.Get(ctx, tx, t.orgID, t.id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status != t.from {
			return domain.ErrInvalidTransition
		}
		if err := t.check(current); err != nil {
			return err
		}

		now := s.clock.Now()
		updates := map[string]any{"status": t.to, "updated_at": now}
		if t.to == domain.StatusSubmitted {
			updates["submitted_at"] = now
		} else {
			updates["decided_by"] = t.userID
			updates["decided_at"] = now
			updates["decision_note"] = t.note
		}

		rows, err := s.repo.Transition(ctx, tx, t.orgID, t.id, t.from, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrInvalidTransition
		}

		if err := s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			OrgID:      t.orgID,
			Action:     t.action,
			TargetType: "requisition",
			TargetID:   t.id.String(),
			Metadata:   map[string]any{"from": string(t.from), "to": string(t.to)},
		}); err != nil {
			return err
		}

		updated, err = s.repo.Get(ctx, tx, t.orgID, t.id)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &domain.TransitionResult{Requisition: updated}
	subjectID := t.id
	_, notifyErr := s.router.Notify(ctx, notificationdomain.Event{
		OrgID:          t.orgID,
		Kind:           t.kind,
		ActorUserID:    t.userID,
		SubjectID:      &subjectID,
		IdempotencyKey: string(t.kind) + ":" + t.id.String(),
	})
	if notifyErr != nil {
		result.NotificationError = notifyErr
		s.recordDeliveryFailure(ctx, t, notifyErr)
	}
	return result, nil
}

func (s *Service) recordDeliveryFailure(ctx context.Context, t transition, notifyErr error) {
	log := logger.WithContext(ctx, s.log)
	log.Error("requisition notification failed",
		zap.String("org_id", t.orgID.String()),
		zap.String("requisition_id", t.id.String()),
		zap.String("status", string(t.to)),
		zap.Error(notifyErr),
	)

	if err := s.audit.AuditLog(ctx, auditdomain.Entry{
		OrgID:      t.orgID,
		Action:     auditdomain.ActionDeliveryFailed,
		TargetType: "requisition",
		TargetID:   t.id.String(),
		Metadata:   map[string]any{"status": string(t.to), "error": notifyErr.Error()},
	}); err != nil {
		log.Warn("audit delivery failure", zap.Error(err))
	}
}
