package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/notification/realtime"
	"github.com/smallbiznis/procura/internal/observability/logger"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"go.uber.org/zap"
)

// Every inbox operation filters by recipient and organization together.

func (s *Service) List(ctx context.Context, userID, orgID snowflake.ID, req domain.ListRequest) ([]domain.Notification, pagination.PageInfo, error) {
	if err := validateScope(userID, orgID); err != nil {
		return nil, pagination.PageInfo{}, err
	}
	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	limit := req.Limit()
	rows, err := s.repo.List(ctx, s.db, domain.ListFilter{
		OrgID:           orgID,
		RecipientUserID: userID,
		UnreadOnly:      req.UnreadOnly,
		Cursor:          cursor,
		Limit:           limit + 1,
	})
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	page, info := pagination.BuildCursorPageInfo(rows, limit, func(n domain.Notification) pagination.Cursor {
		return encodeCursor(n.ID, n.CreatedAt)
	})
	return page, info, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID, orgID snowflake.ID) (int64, error) {
	if err := validateScope(userID, orgID); err != nil {
		return 0, err
	}
	return s.repo.CountUnread(ctx, s.db, userID, orgID)
}

func (s *Service) MarkRead(ctx context.Context, userID, orgID, id snowflake.ID) error {
	if err := validateScope(userID, orgID); err != nil {
		return err
	}
	n, err := s.repo.Get(ctx, s.db, userID, orgID, id)
	if err != nil {
		return err
	}
	if n == nil {
		return domain.ErrNotFound
	}
	if n.IsRead {
		return nil
	}
	_, err = s.repo.MarkRead(ctx, s.db, userID, orgID, id, s.clock.Now())
	return err
}

func (s *Service) Delete(ctx context.Context, userID, orgID, id snowflake.ID) error {
	if err := validateScope(userID, orgID); err != nil {
		return err
	}
	rows, err := s.repo.Delete(ctx, s.db, userID, orgID, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID, orgID snowflake.ID) (int64, error) {
	if err := validateScope(userID, orgID); err != nil {
		return 0, err
	}
	rows, err := s.repo.MarkAllRead(ctx, s.db, userID, orgID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	s.resetSessions(ctx, userID, orgID)
	return rows, nil
}

func (s *Service) ClearAll(ctx context.Context, userID, orgID snowflake.ID) (int64, error) {
	if err := validateScope(userID, orgID); err != nil {
		return 0, err
	}
	rows, err := s.repo.ClearAll(ctx, s.db, userID, orgID)
	if err != nil {
		return 0, err
	}
	s.resetSessions(ctx, userID, orgID)
	return rows, nil
}

// resetSessions tells the user's other live sessions on orgID to reload counts.
func (s *Service) resetSessions(ctx context.Context, userID, orgID snowflake.ID) {
	event := realtime.Event{Type: realtime.EventReset, OrgID: orgID.String()}
	if _, err := s.publisher.Publish(ctx, orgID, userID, event); err != nil {
		logger.WithContext(ctx, s.log).Warn("session reset publish failed",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
}

func validateScope(userID, orgID snowflake.ID) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	return nil
}
