package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"github.com/smallbiznis/procura/pkg/errs"
	"gorm.io/gorm"
)

// Event is a workflow occurrence that produces notifications in exactly one organization.
type Event struct {
	OrgID       snowflake.ID
	Kind        Kind
	ActorUserID snowflake.ID
	SubjectID   *snowflake.ID

	// Custom events only.
	Recipients []snowflake.ID
	Title      string
	Message    string
	Link       *string
	TemplateID string

	// IdempotencyKey makes re-delivery of the same event a no-op. Derived from
	// the event when empty.
	IdempotencyKey string
}

type Router interface {
	// Notify persists one notification per recipient, then delivers each one live
	// and enqueues its email. A non-nil error alongside recipients is a
	// *DeliveryError: the rows were committed and stay.
	Notify(ctx context.Context, event Event) ([]snowflake.ID, error)
	DeliverRealtime(ctx context.Context, n Notification) bool
	EnqueueEmail(ctx context.Context, n Notification, templateID string) (*EmailJob, error)
}

type Inbox interface {
	List(ctx context.Context, userID, orgID snowflake.ID, req ListRequest) ([]Notification, pagination.PageInfo, error)
	UnreadCount(ctx context.Context, userID, orgID snowflake.ID) (int64, error)
	MarkRead(ctx context.Context, userID, orgID, id snowflake.ID) error
	Delete(ctx context.Context, userID, orgID, id snowflake.ID) error
	MarkAllRead(ctx context.Context, userID, orgID snowflake.ID) (int64, error)
	ClearAll(ctx context.Context, userID, orgID snowflake.ID) (int64, error)
}

type EmailAdmin interface {
	ListEmailJobs(ctx context.Context, orgID snowflake.ID, req ListEmailJobsRequest) ([]EmailJob, pagination.PageInfo, error)
	RetriggerEmail(ctx context.Context, orgID, jobID snowflake.ID) (*EmailJob, error)
}

type Service interface {
	Router
	Inbox
	EmailAdmin
}

type ListRequest struct {
	pagination.Pagination
	UnreadOnly bool
}

type ListEmailJobsRequest struct {
	pagination.Pagination
	Status EmailStatus
}

// Subject is a requisition joined with the organization it belongs to.
type Subject struct {
	RequisitionID    snowflake.ID
	OrgID            snowflake.ID
	OrganizationName string
	Title            string
	Amount           decimal.Decimal
	Currency         string
	RequesterID      snowflake.ID
	DecisionNote     string
}

type Recipient struct {
	UserID      snowflake.ID
	Email       string
	DisplayName string
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID           snowflake.ID
	RecipientUserID snowflake.ID
	UnreadOnly      bool
	Cursor          *Cursor
	Limit           int
}

type EmailJobFilter struct {
	OrgID  snowflake.ID
	Status EmailStatus
	Cursor *Cursor
	Limit  int
}

type Repository interface {
	LoadSubject(ctx context.Context, db *gorm.DB, orgID, subjectID snowflake.ID) (*Subject, error)
	OrganizationName(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (string, error)
	Recipient(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Recipient, error)

	// InsertIgnoreDuplicates returns the rows that were actually inserted.
	InsertIgnoreDuplicates(ctx context.Context, db *gorm.DB, rows []Notification) ([]Notification, error)
	Get(ctx context.Context, db *gorm.DB, userID, orgID, id snowflake.ID) (*Notification, error)
	GetInOrg(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Notification, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Notification, error)
	CountUnread(ctx context.Context, db *gorm.DB, userID, orgID snowflake.ID) (int64, error)
	MarkRead(ctx context.Context, db *gorm.DB, userID, orgID, id snowflake.ID, now time.Time) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, userID, orgID, id snowflake.ID) (int64, error)
	MarkAllRead(ctx context.Context, db *gorm.DB, userID, orgID snowflake.ID, now time.Time) (int64, error)
	ClearAll(ctx context.Context, db *gorm.DB, userID, orgID snowflake.ID) (int64, error)

	InsertEmailJob(ctx context.Context, db *gorm.DB, job *EmailJob) error
	GetEmailJob(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*EmailJob, error)
	ListEmailJobs(ctx context.Context, db *gorm.DB, filter EmailJobFilter) ([]EmailJob, error)
	// ListPendingEmailJobs returns pending jobs of every organization, oldest
	// first. Listed jobs are candidates only; a dispatcher owns a job once its
	// pending -> sending transition affects the row.
	ListPendingEmailJobs(ctx context.Context, db *gorm.DB, limit int) ([]EmailJob, error)
	// FailStaleEmailJobs fails jobs left in sending since before the cutoff.
	FailStaleEmailJobs(ctx context.Context, db *gorm.DB, before, now time.Time, reason string) (int64, error)
	// TransitionEmailJob applies updates only while the job is in status from.
	TransitionEmailJob(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from EmailStatus, updates map[string]any) (int64, error)
}

var (
	ErrInvalidOrganization = errs.New(errs.ErrInvalidArgument, "invalid_organization")
	ErrInvalidUser         = errs.New(errs.ErrInvalidArgument, "invalid_user")
	ErrInvalidKind         = errs.New(errs.ErrInvalidArgument, "invalid_notification_kind")
	ErrInvalidEvent        = errs.New(errs.ErrInvalidArgument, "invalid_notification_event")
	ErrRecipientNotMember  = errs.New(errs.ErrInvalidArgument, "recipient_not_member")
	ErrInvalidTemplate     = errs.New(errs.ErrInvalidArgument, "invalid_template")
	ErrInvalidStatus       = errs.New(errs.ErrInvalidArgument, "invalid_email_status")
	ErrInvalidPageToken    = errs.New(errs.ErrInvalidArgument, "invalid_page_token")
	ErrSubjectNotFound     = errs.New(errs.ErrNotFound, "subject_not_found")
	ErrNotFound            = errs.New(errs.ErrNotFound, "notification_not_found")
	ErrEmailJobNotFound    = errs.New(errs.ErrNotFound, "email_job_not_found")
	ErrEmailJobNotFailed   = errs.New(errs.ErrConflict, "email_job_not_failed")
)

func (k Kind) Valid() bool {
	switch k {
	case KindSubmitted, KindApproved, KindRejected, KindCustom:
		return true
	}
	return false
}

func (s EmailStatus) Valid() bool {
	switch s {
	case EmailPending, EmailSending, EmailSent, EmailFailed:
		return true
	}
	return false
}

// DeliveryFailure is one recipient whose live delivery or email enqueue failed.
type DeliveryFailure struct {
	NotificationID snowflake.ID
	RecipientID    snowflake.ID
	Err            error
}

// DeliveryError reports post-commit delivery failures. It unwraps to every
// underlying error, so errors.Is(err, errs.ErrTemplate) and
// errors.Is(err, errs.ErrTransport) both work.
type DeliveryError struct {
	Failures []DeliveryFailure
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.RecipientID.String()+": "+f.Err.Error())
	}
	return "notification delivery failed: " + strings.Join(parts, "; ")
}

func (e *DeliveryError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// AsDeliveryError reports whether err carries post-commit delivery failures.
func AsDeliveryError(err error) (*DeliveryError, bool) {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
