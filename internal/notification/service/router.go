package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/notification/realtime"
	"github.com/smallbiznis/procura/internal/notification/template"
	"github.com/smallbiznis/procura/internal/observability/logger"
	"github.com/smallbiznis/procura/pkg/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Notify(ctx context.Context, event domain.Event) ([]snowflake.ID, error) {
	if event.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if !event.Kind.Valid() {
		return nil, domain.ErrInvalidKind
	}

	templateID, err := s.templateFor(event)
	if err != nil {
		return nil, err
	}

	var subject *domain.Subject
	if event.SubjectID != nil {
		subject, err = s.repo.LoadSubject(ctx, s.db, event.OrgID, *event.SubjectID)
		if err != nil {
			return nil, err
		}
		if subject == nil {
			return nil, domain.ErrSubjectNotFound
		}
	} else if event.Kind != domain.KindCustom {
		return nil, domain.ErrInvalidEvent
	}

	recipients, err := s.resolveRecipients(ctx, event, subject)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	rows := s.buildRows(event, subject, recipients)
	var inserted []domain.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err = s.repo.InsertIgnoreDuplicates(ctx, tx, rows)
		if err != nil {
			return err
		}
		if event.Kind == domain.KindCustom && len(inserted) > 0 {
			return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
				OrgID:      event.OrgID,
				Action:     auditdomain.ActionCustomNotificationSent,
				TargetType: "notification",
				TargetID:   inserted[0].DedupeKey,
				Metadata:   map[string]any{"recipients": len(inserted), "title": event.Title},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordNotifications(ctx, string(event.Kind), len(inserted))

	log := logger.WithContext(ctx, s.log)
	delivered := make([]snowflake.ID, 0, len(inserted))
	var failures []domain.DeliveryFailure
	for _, n := range inserted {
		delivered = append(delivered, n.RecipientUserID)

		if _, err := s.deliverRealtime(ctx, n); err != nil {
			failures = append(failures, domain.DeliveryFailure{NotificationID: n.ID, RecipientID: n.RecipientUserID, Err: err})
		}
		if _, err := s.EnqueueEmail(ctx, n, templateID); err != nil {
			failures = append(failures, domain.DeliveryFailure{NotificationID: n.ID, RecipientID: n.RecipientUserID, Err: err})
		}
	}

	log.Info("notifications created",
		zap.String("org_id", event.OrgID.String()),
		zap.String("kind", string(event.Kind)),
		zap.Int("recipients", len(recipients)),
		zap.Int("inserted", len(inserted)),
		zap.Int("delivery_failures", len(failures)),
	)
	if len(failures) > 0 {
		return delivered, &domain.DeliveryError{Failures: failures}
	}
	return delivered, nil
}

func (s *Service) DeliverRealtime(ctx context.Context, n domain.Notification) bool {
	delivered, _ := s.deliverRealtime(ctx, n)
	return delivered
}

func (s *Service) deliverRealtime(ctx context.Context, n domain.Notification) (bool, error) {
	count, err := s.publisher.Publish(ctx, n.OrgID, n.RecipientUserID, realtime.NotificationEvent(n))
	if err != nil {
		s.metrics.RecordRealtimeDelivery(ctx, false)
		logger.WithContext(ctx, s.log).Warn("realtime publish failed",
			zap.String("org_id", n.OrgID.String()),
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)
		return false, fmt.Errorf("%w: realtime publish: %w", errs.ErrTransport, err)
	}
	s.metrics.RecordRealtimeDelivery(ctx, count > 0)
	return count > 0, nil
}

func (s *Service) templateFor(event domain.Event) (string, error) {
	switch event.Kind {
	case domain.KindSubmitted:
		return template.RequisitionSubmitted, nil
	case domain.KindApproved:
		return template.RequisitionApproved, nil
	case domain.KindRejected:
		return template.RequisitionRejected, nil
	}

	id := strings.TrimSpace(event.TemplateID)
	if id == "" {
		id = template.Custom
	}
	if !s.renderer.Known(id) {
		return "", domain.ErrInvalidTemplate
	}
	return id, nil
}

func (s *Service) resolveRecipients(ctx context.Context, event domain.Event, subject *domain.Subject) ([]snowflake.ID, error) {
	switch event.Kind {
	case domain.KindSubmitted:
		cfg := s.config.Get()
		members, err := s.organizations.ListMembersByRoles(ctx, event.OrgID, cfg.ReviewerRoles)
		if err != nil {
			return nil, err
		}
		out := make([]snowflake.ID, 0, len(members))
		for _, m := range members {
			if m.UserID == event.ActorUserID {
				continue
			}
			out = append(out, m.UserID)
		}
		return dedupe(out), nil

	case domain.KindApproved, domain.KindRejected:
		return []snowflake.ID{subject.RequesterID}, nil

	default:
		if strings.TrimSpace(event.Title) == "" || len(event.Recipients) == 0 {
			return nil, domain.ErrInvalidEvent
		}
		recipients := dedupe(event.Recipients)
		for _, userID := range recipients {
			ok, err := s.organizations.IsMember(ctx, event.OrgID, userID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, domain.ErrRecipientNotMember
			}
		}
		return recipients, nil
	}
}

func (s *Service) buildRows(event domain.Event, subject *domain.Subject, recipients []snowflake.ID) []domain.Notification {
	title, message := event.Title, event.Message
	link := event.Link
	if subject != nil {
		if link == nil {
			value := "/requisitions/" + subject.RequisitionID.String()
			link = &value
		}
		switch event.Kind {
		case domain.KindSubmitted:
			title = "Requisition awaiting review"
			message = fmt.Sprintf("%s (%s %s) was submitted for review.", subject.Title, subject.Amount.StringFixed(2), subject.Currency)
		case domain.KindApproved:
			title = "Requisition approved"
			message = fmt.Sprintf("%s was approved.", subject.Title)
		case domain.KindRejected:
			title = "Requisition rejected"
			message = fmt.Sprintf("%s was rejected.", subject.Title)
			if note := strings.TrimSpace(subject.DecisionNote); note != "" {
				message = fmt.Sprintf("%s was rejected: %s", subject.Title, note)
			}
		}
	}

	dedupeKey := strings.TrimSpace(event.IdempotencyKey)
	if dedupeKey == "" {
		if subject != nil && event.Kind != domain.KindCustom {
			dedupeKey = string(event.Kind) + ":" + subject.RequisitionID.String()
		} else {
			dedupeKey = string(event.Kind) + ":" + s.genID.Generate().String()
		}
	}

	now := s.clock.Now()
	rows := make([]domain.Notification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, domain.Notification{
			ID:              s.genID.Generate(),
			OrgID:           event.OrgID,
			RecipientUserID: userID,
			Type:            event.Kind,
			Title:           title,
			Message:         message,
			Link:            link,
			SubjectID:       event.SubjectID,
			DedupeKey:       dedupeKey,
			CreatedAt:       now,
		})
	}
	return rows
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
