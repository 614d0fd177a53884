package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/organization/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) GetOrganization(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Where("id = ?", orgID).Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Organization{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *repository) AddMember(ctx context.Context, member domain.OrganizationMember) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, org_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.ID,
		member.OrgID,
		member.UserID,
		member.Role,
		member.CreatedAt,
	).Error
}

func (r *repository) GetMember(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListMembers returns members of orgID, optionally restricted to roles.
func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID, roles []string) ([]domain.MemberContact, error) {
	var items []domain.MemberContact
	stmt := r.db.WithContext(ctx).
		Table("organization_members AS m").
		Select("m.user_id, m.role, COALESCE(u.email, '') AS email, COALESCE(u.display_name, '') AS display_name").
		Joins("LEFT JOIN users u ON u.id = m.user_id").
		Where("m.org_id = ?", orgID)
	if len(roles) > 0 {
		stmt = stmt.Where("m.role IN ?", roles)
	}
	if err := stmt.Order("m.created_at ASC, m.user_id ASC").Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	var items []domain.OrganizationListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, m.role, o.created_at
		 FROM organizations o
		 JOIN organization_members m ON m.org_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY o.created_at ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *repository) UpsertUser(ctx context.Context, user domain.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "updated_at"}),
	}).Create(&user).Error
}

func (r *repository) GetUser(ctx context.Context, userID snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
