package service

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/notification/realtime"
	"github.com/smallbiznis/procura/internal/notification/template"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Repo          domain.Repository
	GenID         *snowflake.Node
	Clock         clock.Clock
	Organizations organizationdomain.Service
	Audit         auditdomain.Service
	Publisher     realtime.Publisher
	Renderer      *template.Renderer
	Config        *config.NotificationConfigHolder
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	repo          domain.Repository
	genID         *snowflake.Node
	clock         clock.Clock
	organizations organizationdomain.Service
	audit         auditdomain.Service
	publisher     realtime.Publisher
	renderer      *template.Renderer
	config        *config.NotificationConfigHolder
	metrics       *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("notification.service"),
		repo:          p.Repo,
		genID:         p.GenID,
		clock:         p.Clock,
		organizations: p.Organizations,
		audit:         p.Audit,
		publisher:     p.Publisher,
		renderer:      p.Renderer,
		config:        p.Config,
		metrics:       p.Metrics,
	}
}

func decodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(decoded.ID)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.Cursor{ID: id, CreatedAt: createdAt}, nil
}

func encodeCursor(id snowflake.ID, createdAt time.Time) pagination.Cursor {
	return pagination.Cursor{ID: id.String(), CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)}
}
