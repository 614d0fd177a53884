package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"github.com/smallbiznis/procura/pkg/errs"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, orgID, userID snowflake.ID, req CreateRequest) (*Requisition, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Requisition, error)
	List(ctx context.Context, orgID snowflake.ID, req ListRequest) ([]Requisition, pagination.PageInfo, error)
	Submit(ctx context.Context, orgID, userID, id snowflake.ID) (*TransitionResult, error)
	Approve(ctx context.Context, orgID, userID, id snowflake.ID, req DecisionRequest) (*TransitionResult, error)
	Reject(ctx context.Context, orgID, userID, id snowflake.ID, req DecisionRequest) (*TransitionResult, error)
}

type CreateRequest struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Currency    string
}

type ListRequest struct {
	pagination.Pagination
	Status Status
}

type DecisionRequest struct {
	Note string
}

// TransitionResult is returned once a transition has committed.
// NotificationError is set when notifying about it failed afterwards.
type TransitionResult struct {
	Requisition       *Requisition
	NotificationError error
}

type ListFilter struct {
	OrgID  snowflake.ID
	Status Status
	Cursor *Cursor
	Limit  int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, r *Requisition) error
	Get(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Requisition, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Requisition, error)
	// Transition applies updates only while the row is in status from.
	Transition(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from Status, updates map[string]any) (int64, error)
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

var (
	ErrInvalidOrganization = errs.New(errs.ErrInvalidArgument, "invalid_organization")
	ErrInvalidUser         = errs.New(errs.ErrInvalidArgument, "invalid_user")
	ErrInvalidTitle        = errs.New(errs.ErrInvalidArgument, "invalid_title")
	ErrInvalidAmount       = errs.New(errs.ErrInvalidArgument, "invalid_amount")
	ErrInvalidCurrency     = errs.New(errs.ErrInvalidArgument, "invalid_currency")
	ErrInvalidStatus       = errs.New(errs.ErrInvalidArgument, "invalid_status")
	ErrInvalidPageToken    = errs.New(errs.ErrInvalidArgument, "invalid_page_token")
	ErrNotFound            = errs.New(errs.ErrNotFound, "requisition_not_found")
	ErrInvalidTransition   = errs.New(errs.ErrConflict, "invalid_status_transition")
	ErrNotRequester        = errs.New(errs.ErrForbidden, "only_requester_may_submit")
	ErrSelfDecision        = errs.New(errs.ErrForbidden, "requester_cannot_decide")
)
