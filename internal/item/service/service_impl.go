package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	categorydomain "github.com/smallbiznis/procura/internal/category/domain"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/item/domain"
	"github.com/smallbiznis/procura/internal/observability/logger"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	sequencedomain "github.com/smallbiznis/procura/internal/sequence/domain"
	sequenceservice "github.com/smallbiznis/procura/internal/sequence/service"
	pkgdb "github.com/smallbiznis/procura/pkg/db"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	GenID      *snowflake.Node
	Clock      clock.Clock
	Sequences  sequencedomain.Service
	Categories categorydomain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	genID      *snowflake.Node
	clock      clock.Clock
	sequences  sequencedomain.Service
	categories categorydomain.Service
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("item.service"),
		repo:       p.Repo,
		genID:      p.GenID,
		clock:      p.Clock,
		sequences:  p.Sequences,
		categories: p.Categories,
		metrics:    p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, orgID, userID snowflake.ID, req domain.CreateRequest) (*domain.Item, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return nil, domain.ErrInvalidName
	}
	unit := strings.TrimSpace(req.Unit)
	if len(unit) > 32 {
		return nil, domain.ErrInvalidUnit
	}

	log := logger.WithContext(ctx, s.log)
	item, err := pkgdb.RetryOnConflict(ctx, func() (*domain.Item, error) {
		var created *domain.Item
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Held until commit so the category cannot be deleted under the new item.
			if req.CategoryID != nil {
				if _, err := s.categories.LockActive(ctx, tx, orgID, *req.CategoryID); err != nil {
					return err
				}
			}

			code, err := s.sequences.AllocateNextTx(ctx, tx, orgID)
			if err != nil {
				return err
			}

			now := s.clock.Now()
			item := &domain.Item{
				ID:         s.genID.Generate(),
				OrgID:      orgID,
				Code:       code,
				Name:       name,
				Unit:       unit,
				CategoryID: req.CategoryID,
				CreatedBy:  userID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.repo.Insert(ctx, tx, item); err != nil {
				return err
			}
			created = item
			return nil
		})
		return created, err
	}, func(attempt int, err error) {
		s.metrics.RecordAllocationConflict(ctx, orgID.String())
		log.Warn("item code allocation conflict",
			zap.String("org_id", orgID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// The counter was moved below an issued code by a direct write.
			log.Error("issued item code already exists", zap.String("org_id", orgID.String()), zap.Error(err))
			return nil, domain.ErrDuplicateCode
		}
		return nil, sequenceservice.ClassifyError(err)
	}

	s.metrics.RecordCodeAllocated(ctx, orgID.String())
	log.Info("item created",
		zap.String("org_id", orgID.String()),
		zap.String("item_id", item.ID.String()),
		zap.String("code", item.Code),
	)
	return item, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*domain.Item, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	item, err := s.repo.Get(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, req domain.ListRequest) ([]domain.Item, pagination.PageInfo, error) {
	if orgID == 0 {
		return nil, pagination.PageInfo{}, domain.ErrInvalidOrganization
	}

	var cursor *pagination.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, pagination.PageInfo{}, domain.ErrInvalidPageToken
		}
		if _, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt); err != nil {
			return nil, pagination.PageInfo{}, domain.ErrInvalidPageToken
		}
		if _, err := snowflake.ParseString(decoded.ID); err != nil {
			return nil, pagination.PageInfo{}, domain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		OrgID:      orgID,
		CategoryID: req.CategoryID,
		Query:      req.Query,
		Cursor:     cursor,
		Limit:      limit + 1,
	})
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	page, info := pagination.BuildCursorPageInfo(items, limit, func(item domain.Item) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String(), CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})
	return page, info, nil
}
