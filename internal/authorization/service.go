package authorization

import (
	"context"

	"github.com/smallbiznis/procura/pkg/errs"
)

// Service decides whether an actor may perform an action on an object within an organization.
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}

var (
	ErrInvalidActor        = errs.New(errs.ErrUnauthorized, "invalid_actor")
	ErrInvalidOrganization = errs.New(errs.ErrInvalidArgument, "invalid_organization")
	ErrInvalidObject       = errs.New(errs.ErrInvalidArgument, "invalid_object")
	ErrInvalidAction       = errs.New(errs.ErrInvalidArgument, "invalid_action")
	ErrForbidden           = errs.New(errs.ErrForbidden, "forbidden")
)
