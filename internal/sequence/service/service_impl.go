package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/observability/logger"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	"github.com/smallbiznis/procura/internal/sequence/domain"
	"github.com/smallbiznis/procura/internal/sequence/format"
	pkgdb "github.com/smallbiznis/procura/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Audit   auditdomain.Service
	Clock   clock.Clock
	Config  config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	audit   auditdomain.Service
	clock   clock.Clock
	metrics *metrics.Metrics

	defaultPrefix  string
	defaultPadding int
}

func NewService(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("sequence.service"),
		repo:           p.Repo,
		audit:          p.Audit,
		clock:          p.Clock,
		metrics:        p.Metrics,
		defaultPrefix:  p.Config.Sequence.DefaultPrefix,
		defaultPadding: p.Config.Sequence.DefaultPadding,
	}
}

func (s *Service) AllocateNext(ctx context.Context, orgID snowflake.ID) (string, error) {
	if orgID == 0 {
		return "", domain.ErrInvalidOrg
	}

	code, err := pkgdb.RetryOnConflict(ctx, func() (string, error) {
		var code string
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			allocated, err := s.AllocateNextTx(ctx, tx, orgID)
			if err != nil {
				return err
			}
			code = allocated
			return nil
		})
		return code, err
	}, func(attempt int, err error) {
		s.metrics.RecordAllocationConflict(ctx, orgID.String())
		logger.WithContext(ctx, s.log).Warn("counter allocation conflict",
			zap.String("org_id", orgID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		return "", ClassifyError(err)
	}

	s.metrics.RecordCodeAllocated(ctx, orgID.String())
	return code, nil
}

func (s *Service) AllocateNextTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (string, error) {
	if orgID == 0 {
		return "", domain.ErrInvalidOrg
	}

	issued, err := s.repo.Allocate(ctx, tx, orgID, s.clock.Now())
	if err != nil {
		return "", fmt.Errorf("allocate code: %w", err)
	}
	if issued == nil {
		return "", domain.ErrCounterNotFound
	}

	return format.FormatCode(issued.Prefix, issued.Number, issued.Padding)
}

func (s *Service) SetNext(ctx context.Context, orgID snowflake.ID, next int64) (*domain.Counter, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	if next < 1 {
		return nil, domain.ErrInvalidNext
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.Get(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrCounterNotFound
		}

		rows, err := s.repo.SetNext(ctx, tx, orgID, next, s.clock.Now())
		if err != nil {
			return err
		}
		// MySQL reports zero affected rows when the stored values are unchanged.
		if rows == 0 && !(current.NextNumber == next && current.LastIssued < next) {
			return domain.ErrInvalidNext
		}

		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     auditdomain.ActionSequenceSetNext,
			TargetType: "org_counter",
			TargetID:   orgID.String(),
			Metadata: map[string]any{
				"previous_next_number": current.NextNumber,
				"next_number":          next,
				"last_issued":          current.LastIssued,
			},
		})
	})
	if err != nil {
		return nil, ClassifyError(err)
	}

	return s.Get(ctx, orgID)
}

func (s *Service) Configure(ctx context.Context, orgID snowflake.ID, req domain.ConfigureRequest) (*domain.Counter, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.Get(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrCounterNotFound
		}

		prefix := current.Prefix
		if req.Prefix != nil {
			prefix = strings.ToUpper(strings.TrimSpace(*req.Prefix))
		}
		padding := current.Padding
		if req.Padding != nil {
			padding = *req.Padding
		}
		if !format.ValidPrefix(prefix) {
			return domain.ErrInvalidPrefix
		}
		if !format.ValidPadding(padding) {
			return domain.ErrInvalidPadding
		}

		if _, err := s.repo.Configure(ctx, tx, orgID, prefix, padding, s.clock.Now()); err != nil {
			return err
		}

		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     auditdomain.ActionSequenceConfigure,
			TargetType: "org_counter",
			TargetID:   orgID.String(),
			Metadata: map[string]any{
				"previous_prefix":  current.Prefix,
				"prefix":           prefix,
				"previous_padding": current.Padding,
				"padding":          padding,
			},
		})
	})
	if err != nil {
		return nil, ClassifyError(err)
	}

	return s.Get(ctx, orgID)
}

func (s *Service) Get(ctx context.Context, orgID snowflake.ID) (*domain.Counter, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrg
	}
	counter, err := s.repo.Get(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		return nil, domain.ErrCounterNotFound
	}
	return counter, nil
}

func (s *Service) Provision(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, prefix string, padding int) error {
	if orgID == 0 {
		return domain.ErrInvalidOrg
	}

	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = s.defaultPrefix
		padding = s.defaultPadding
	}
	if !format.ValidPrefix(prefix) {
		return domain.ErrInvalidPrefix
	}
	if !format.ValidPadding(padding) {
		return domain.ErrInvalidPadding
	}

	now := s.clock.Now()
	err := s.repo.Create(ctx, tx, domain.Counter{
		OrgID:      orgID,
		Prefix:     prefix,
		NextNumber: 1,
		Padding:    padding,
		LastIssued: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if pkgdb.IsDuplicateKeyErr(err) {
		return domain.ErrCounterExists
	}
	return err
}

// ClassifyError maps store conflicts that survived retries onto ErrConflict.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if pkgdb.IsConflictErr(err) {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

