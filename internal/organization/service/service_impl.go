package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/organization/domain"
	sequencedomain "github.com/smallbiznis/procura/internal/sequence/domain"
	pkgdb "github.com/smallbiznis/procura/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	GenID     *snowflake.Node
	Clock     clock.Clock
	Sequences sequencedomain.Service
	Audit     auditdomain.Service
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	clock     clock.Clock
	sequences sequencedomain.Service
	audit     auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("organization.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		clock:     p.Clock,
		sequences: p.Sequences,
		audit:     p.Audit,
	}
}

// Create makes userID the OWNER and provisions the code counter in the same transaction.
func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	baseSlug := slug.Make(name)
	if baseSlug == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:        orgID,
		Name:      name,
		Slug:      baseSlug,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		taken, err := repo.SlugExists(ctx, baseSlug)
		if err != nil {
			return err
		}
		if taken {
			org.Slug = baseSlug + "-" + strings.ToLower(orgID.Base36())
		}

		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}

		member := domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    userID,
			Role:      domain.RoleOwner,
			CreatedAt: now,
		}
		if err := repo.AddMember(ctx, member); err != nil {
			return err
		}

		return s.sequences.Provision(ctx, tx, orgID, req.CodePrefix, req.CodePadding)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", orgID.String()),
		zap.String("owner_user_id", userID.String()),
	)

	return &domain.OrganizationResponse{
		ID:        orgID.String(),
		Name:      name,
		Slug:      org.Slug,
		CreatedAt: now,
	}, nil
}

func (s *service) GetByID(ctx context.Context, orgID snowflake.ID) (*domain.OrganizationResponse, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationMissing
	}

	return &domain.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		CreatedAt: org.CreatedAt,
	}, nil
}

func (s *service) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}

	return resp, nil
}

func (s *service) AddMember(ctx context.Context, orgID snowflake.ID, req domain.AddMemberRequest) (*domain.MemberResponse, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleMember
	}
	if !domain.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}
	displayName := strings.TrimSpace(req.DisplayName)

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		org, err := repo.GetOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationMissing
		}

		if err := repo.UpsertUser(ctx, domain.User{
			ID:          req.UserID,
			Email:       email,
			DisplayName: displayName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}

		err = repo.AddMember(ctx, domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    req.UserID,
			Role:      role,
			CreatedAt: now,
		})
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.ErrMemberExists
		}
		if err != nil {
			return err
		}

		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			OrgID:      orgID,
			Action:     auditdomain.ActionMemberAdded,
			TargetType: "user",
			TargetID:   req.UserID.String(),
			Metadata:   map[string]any{"role": role, "email": email},
		})
	})
	if err != nil {
		return nil, err
	}

	return &domain.MemberResponse{
		UserID:      req.UserID.String(),
		Email:       email,
		DisplayName: displayName,
		Role:        role,
	}, nil
}

func (s *service) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberResponse, error) {
	contacts, err := s.ListMembersByRoles(ctx, orgID, nil)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.MemberResponse, 0, len(contacts))
	for _, contact := range contacts {
		resp = append(resp, domain.MemberResponse{
			UserID:      contact.UserID.String(),
			Email:       contact.Email,
			DisplayName: contact.DisplayName,
			Role:        contact.Role,
		})
	}
	return resp, nil
}

func (s *service) ListMembersByRoles(ctx context.Context, orgID snowflake.ID, roles []string) ([]domain.MemberContact, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = strings.ToUpper(strings.TrimSpace(role)); role != "" {
			normalized = append(normalized, role)
		}
	}
	return s.repo.ListMembers(ctx, orgID, normalized)
}

func (s *service) IsMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	if orgID == 0 || userID == 0 {
		return false, nil
	}
	member, err := s.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}

func (s *service) MemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	if orgID == 0 || userID == 0 {
		return "", domain.ErrNotMember
	}
	member, err := s.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", domain.ErrNotMember
	}
	return member.Role, nil
}

// EnsureUser refreshes the mirrored profile from identity headers.
func (s *service) EnsureUser(ctx context.Context, req domain.EnsureUserRequest) error {
	if req.UserID == 0 {
		return domain.ErrInvalidUser
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	return s.repo.UpsertUser(ctx, domain.User{
		ID:          req.UserID,
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *service) GetUser(ctx context.Context, userID snowflake.ID) (*domain.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
