package notification

import (
	"github.com/smallbiznis/procura/internal/notification/dispatch"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/notification/realtime"
	"github.com/smallbiznis/procura/internal/notification/repository"
	"github.com/smallbiznis/procura/internal/notification/service"
	"github.com/smallbiznis/procura/internal/notification/template"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	realtime.Module,
	fx.Provide(template.NewRenderer),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s domain.Service) domain.Router { return s }),
	dispatch.Module,
)
