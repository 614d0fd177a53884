package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/notification/template"
	"github.com/smallbiznis/procura/internal/observability/logger"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"github.com/smallbiznis/procura/pkg/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnqueueEmail renders n for its recipient and stores the job. A render failure
// still stores the job, as failed with last_error, and returns the template error.
// A recipient without an email address gets no job.
func (s *Service) EnqueueEmail(ctx context.Context, n domain.Notification, templateID string) (*domain.EmailJob, error) {
	log := logger.WithContext(ctx, s.log)

	recipient, err := s.repo.Recipient(ctx, s.db, n.RecipientUserID)
	if err != nil {
		return nil, err
	}
	if recipient == nil || strings.TrimSpace(recipient.Email) == "" {
		log.Warn("recipient has no email, skipping",
			zap.String("org_id", n.OrgID.String()),
			zap.String("recipient_user_id", n.RecipientUserID.String()),
		)
		return nil, nil
	}

	now := s.clock.Now()
	notificationID := n.ID
	job := &domain.EmailJob{
		ID:             s.genID.Generate(),
		OrgID:          n.OrgID,
		NotificationID: &notificationID,
		RecipientEmail: recipient.Email,
		BodyTemplateID: templateID,
		Status:         domain.EmailPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	rendered, renderErr := s.render(ctx, n, recipient, templateID)
	if renderErr != nil {
		message := renderErr.Error()
		job.Status = domain.EmailFailed
		job.LastError = &message
	} else {
		job.Subject = rendered.Subject
		job.Body = rendered.Body
	}

	if err := s.repo.InsertEmailJob(ctx, s.db, job); err != nil {
		return nil, err
	}
	s.metrics.RecordEmailJob(ctx, string(job.Status))

	if renderErr != nil {
		log.Error("email render failed",
			zap.String("org_id", n.OrgID.String()),
			zap.String("email_job_id", job.ID.String()),
			zap.String("template_id", templateID),
			zap.Error(renderErr),
		)
		return job, renderErr
	}
	return job, nil
}

// render builds template data from the notification's own organization.
func (s *Service) render(ctx context.Context, n domain.Notification, recipient *domain.Recipient, templateID string) (template.Rendered, error) {
	orgName, err := s.repo.OrganizationName(ctx, s.db, n.OrgID)
	if err != nil {
		return template.Rendered{}, err
	}

	recipientName := strings.TrimSpace(recipient.DisplayName)
	if recipientName == "" {
		recipientName = recipient.Email
	}
	link := ""
	if n.Link != nil {
		link = *n.Link
	}

	data := template.Data{}.
		Required("OrganizationName", orgName).
		Set("RecipientName", recipientName).
		Set("Title", n.Title).
		Set("Message", n.Message).
		Set("Link", link)

	if n.SubjectID != nil {
		subject, err := s.repo.LoadSubject(ctx, s.db, n.OrgID, *n.SubjectID)
		if err != nil {
			return template.Rendered{}, err
		}
		if subject != nil {
			data.Required("RequisitionTitle", subject.Title).
				Set("Amount", subject.Amount.StringFixed(2)).
				Set("Currency", subject.Currency).
				Set("DecisionNote", subject.DecisionNote)
		}
	}

	subjectTemplate := s.config.Get().Subjects[templateID]
	return s.renderer.Render(templateID, subjectTemplate, data)
}

func (s *Service) ListEmailJobs(ctx context.Context, orgID snowflake.ID, req domain.ListEmailJobsRequest) ([]domain.EmailJob, pagination.PageInfo, error) {
	if orgID == 0 {
		return nil, pagination.PageInfo{}, domain.ErrInvalidOrganization
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, pagination.PageInfo{}, domain.ErrInvalidStatus
	}
	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	limit := req.Limit()
	jobs, err := s.repo.ListEmailJobs(ctx, s.db, domain.EmailJobFilter{
		OrgID:  orgID,
		Status: req.Status,
		Cursor: cursor,
		Limit:  limit + 1,
	})
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	page, info := pagination.BuildCursorPageInfo(jobs, limit, func(job domain.EmailJob) pagination.Cursor {
		return encodeCursor(job.ID, job.CreatedAt)
	})
	return page, info, nil
}

// RetriggerEmail moves a failed job of orgID back to pending. A job that never
// produced a body is rendered again first and stays failed if that fails.
func (s *Service) RetriggerEmail(ctx context.Context, orgID, jobID snowflake.ID) (*domain.EmailJob, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	job, err := s.repo.GetEmailJob(ctx, s.db, orgID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrEmailJobNotFound
	}
	if job.Status != domain.EmailFailed {
		return nil, domain.ErrEmailJobNotFailed
	}

	now := s.clock.Now()
	updates := map[string]any{
		"status":     domain.EmailPending,
		"last_error": nil,
		"updated_at": now,
	}

	if strings.TrimSpace(job.Body) == "" {
		rendered, err := s.rerender(ctx, job)
		if err != nil {
			message := err.Error()
			if _, updateErr := s.repo.TransitionEmailJob(ctx, s.db, orgID, jobID, domain.EmailFailed, map[string]any{
				"last_error": message,
				"updated_at": now,
			}); updateErr != nil {
				return nil, updateErr
			}
			return nil, err
		}
		updates["subject"] = rendered.Subject
		updates["body"] = rendered.Body
		job.Subject = rendered.Subject
		job.Body = rendered.Body
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.TransitionEmailJob(ctx, tx, orgID, jobID, domain.EmailFailed, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrEmailJobNotFailed
		}
		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     auditdomain.ActionEmailJobRetriggered,
			TargetType: "email_job",
			TargetID:   jobID.String(),
			Metadata:   map[string]any{"recipient_email": job.RecipientEmail, "template_id": job.BodyTemplateID},
		})
	})
	if err != nil {
		return nil, err
	}

	job.Status = domain.EmailPending
	job.LastError = nil
	job.UpdatedAt = now
	s.metrics.RecordEmailJob(ctx, string(domain.EmailPending))
	return job, nil
}

func (s *Service) rerender(ctx context.Context, job *domain.EmailJob) (template.Rendered, error) {
	if job.NotificationID == nil {
		return template.Rendered{}, fmt.Errorf("%w: job has no notification", errs.ErrTemplate)
	}
	n, err := s.repo.GetInOrg(ctx, s.db, job.OrgID, *job.NotificationID)
	if err != nil {
		return template.Rendered{}, err
	}
	if n == nil {
		return template.Rendered{}, fmt.Errorf("%w: notification %s no longer exists", errs.ErrTemplate, job.NotificationID.String())
	}

	recipient, err := s.repo.Recipient(ctx, s.db, n.RecipientUserID)
	if err != nil {
		return template.Rendered{}, err
	}
	if recipient == nil {
		recipient = &domain.Recipient{UserID: n.RecipientUserID, Email: job.RecipientEmail}
	}

	return s.render(ctx, *n, recipient, job.BodyTemplateID)
}
