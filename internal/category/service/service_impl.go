package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/category/domain"
	"github.com/smallbiznis/procura/internal/clock"
	itemdomain "github.com/smallbiznis/procura/internal/item/domain"
	pkgdb "github.com/smallbiznis/procura/pkg/db"
	"github.com/smallbiznis/procura/pkg/db/option"
	"github.com/smallbiznis/procura/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  repository.Repository[domain.Category]
	GenID *snowflake.Node
	Clock clock.Clock
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  repository.Repository[domain.Category]
	genID *snowflake.Node
	clock clock.Clock
	audit auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("category.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, orgID snowflake.ID, req domain.CreateRequest) (*domain.Category, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || len(code) > 64 {
		return nil, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	category := &domain.Category{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Code:      code,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)

		taken, err := repo.Find(ctx, orgID, nil,
			option.ApplyOperator(option.Condition{Field: "LOWER(code)", Operator: option.EQ, Value: strings.ToLower(code)}))
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return domain.ErrDuplicateCode
		}

		taken, err = repo.Find(ctx, orgID, nil,
			option.ApplyOperator(option.Condition{Field: "LOWER(name)", Operator: option.EQ, Value: strings.ToLower(name)}))
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return domain.ErrDuplicateName
		}

		err = repo.Create(ctx, category)
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateCode
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*domain.Category, error) {
	return s.load(ctx, s.repo, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, includeInactive bool) ([]domain.Category, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "name", OrderBy: "asc", Allow: map[string]bool{"name": true}}),
	}
	if !includeInactive {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "is_active", Operator: option.EQ, Value: true}))
	}

	items, err := s.repo.Find(ctx, orgID, nil, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) Deactivate(ctx context.Context, orgID, id snowflake.ID) (*domain.Category, error) {
	return s.setActive(ctx, orgID, id, false)
}

func (s *Service) Reactivate(ctx context.Context, orgID, id snowflake.ID) (*domain.Category, error) {
	return s.setActive(ctx, orgID, id, true)
}

func (s *Service) Delete(ctx context.Context, orgID, id snowflake.ID) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		category, err := s.load(ctx, repo, orgID, id, option.ForUpdate())
		if err != nil {
			return err
		}

		var refs int64
		if err := tx.WithContext(ctx).Model(&itemdomain.Item{}).
			Where("org_id = ? AND category_id = ?", orgID, id).
			Count(&refs).Error; err != nil {
			return err
		}

		action := auditdomain.ActionCategoryDeleted
		if refs > 0 {
			action = auditdomain.ActionCategoryDeactivated
			if _, err := repo.Update(ctx, orgID, id, map[string]any{
				"is_active":  false,
				"updated_at": s.clock.Now(),
			}); err != nil {
				return err
			}
		} else {
			if _, err := repo.Delete(ctx, orgID, id); err != nil {
				return err
			}
			deleted = true
		}

		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     action,
			TargetType: "category",
			TargetID:   id.String(),
			Metadata:   map[string]any{"code": category.Code, "referenced_items": refs},
		})
	})
	return deleted, err
}

func (s *Service) setActive(ctx context.Context, orgID, id snowflake.ID, active bool) (*domain.Category, error) {
	var out *domain.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		category, err := s.load(ctx, repo, orgID, id, option.ForUpdate())
		if err != nil {
			return err
		}
		if category.IsActive == active {
			out = category
			return nil
		}

		now := s.clock.Now()
		if _, err := repo.Update(ctx, orgID, id, map[string]any{"is_active": active, "updated_at": now}); err != nil {
			return err
		}
		category.IsActive = active
		category.UpdatedAt = now
		out = category

		action := auditdomain.ActionCategoryDeactivated
		if active {
			action = auditdomain.ActionCategoryReactivated
		}
		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     action,
			TargetType: "category",
			TargetID:   id.String(),
		})
	})
	return out, err
}

func (s *Service) LockActive(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Category, error) {
	category, err := s.load(ctx, s.repo.WithTrx(tx), orgID, id, option.ForUpdate())
	if err != nil {
		return nil, err
	}
	if !category.IsActive {
		return nil, domain.ErrInactive
	}
	return category, nil
}

// load fetches a live category of orgID. A category of another organization is not found.
func (s *Service) load(ctx context.Context, repo repository.Repository[domain.Category], orgID, id snowflake.ID, opts ...option.QueryOption) (*domain.Category, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	category, err := repo.FindOne(ctx, orgID, &domain.Category{ID: id}, opts...)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, domain.ErrNotFound
	}
	return category, nil
}
