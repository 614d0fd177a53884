package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrganization = "organization"
	ObjectSequence     = "sequence"
	ObjectCategory     = "category"
	ObjectItem         = "item"
	ObjectRequisition  = "requisition"
	ObjectNotification = "notification"
	ObjectEmailJob     = "email_job"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionMemberView   = "member.view"
	ActionMemberManage = "member.manage"

	ActionSequenceView      = "sequence.view"
	ActionSequenceAllocate  = "sequence.allocate"
	ActionSequenceConfigure = "sequence.configure"
	ActionSequenceOverride  = "sequence.override"

	ActionCategoryView   = "category.view"
	ActionCategoryManage = "category.manage"

	ActionItemView   = "item.view"
	ActionItemCreate = "item.create"

	ActionRequisitionView    = "requisition.view"
	ActionRequisitionCreate  = "requisition.create"
	ActionRequisitionSubmit  = "requisition.submit"
	ActionRequisitionApprove = "requisition.approve"
	ActionRequisitionReject  = "requisition.reject"

	ActionNotificationSendCustom = "notification.send_custom"

	ActionEmailJobView      = "email_job.view"
	ActionEmailJobRetrigger = "email_job.retrigger"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// Authorize checks actor ("user:<id>") against the role it holds in orgID.
func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return ErrInvalidOrganization
	}

	userID, err := parseUserActor(actor)
	if err != nil {
		return err
	}

	role, err := s.roleForUser(ctx, parsedOrgID, userID)
	if err != nil {
		s.auditDenied(ctx, parsedOrgID, actor, object, action)
		return err
	}
	roleName := fmt.Sprintf("role:%s", strings.ToLower(role))

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(actor, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, parsedOrgID, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func parseUserActor(actor string) (snowflake.ID, error) {
	if !strings.HasPrefix(actor, "user:") {
		return 0, ErrInvalidActor
	}
	userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
	if err != nil || userID == 0 {
		return 0, ErrInvalidActor
	}
	return userID, nil
}

func (s *ServiceImpl) roleForUser(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

// ensureGrouping keeps exactly one role link per subject and domain, following membership changes.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, orgID snowflake.ID, subject string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		OrgID:      orgID,
		Action:     "authorization.denied",
		TargetType: "authorization",
		TargetID:   object,
		Metadata: map[string]any{
			"object":  object,
			"action":  action,
			"subject": subject,
		},
	})
	if err != nil {
		s.log.Warn("failed to audit authorization denial", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	everyone := []string{"role:owner", "role:admin", "role:approver", "role:reviewer", "role:member"}
	approvers := []string{"role:owner", "role:admin", "role:approver"}
	admins := []string{"role:owner", "role:admin"}

	grants := []struct {
		roles  []string
		object string
		action string
	}{
		{everyone, ObjectOrganization, ActionMemberView},
		{everyone, ObjectCategory, ActionCategoryView},
		{everyone, ObjectItem, ActionItemView},
		{everyone, ObjectItem, ActionItemCreate},
		{everyone, ObjectSequence, ActionSequenceView},
		{everyone, ObjectRequisition, ActionRequisitionView},
		{everyone, ObjectRequisition, ActionRequisitionCreate},
		{everyone, ObjectRequisition, ActionRequisitionSubmit},

		{approvers, ObjectRequisition, ActionRequisitionApprove},
		{approvers, ObjectRequisition, ActionRequisitionReject},

		{admins, ObjectOrganization, ActionMemberManage},
		{admins, ObjectSequence, ActionSequenceAllocate},
		{admins, ObjectSequence, ActionSequenceConfigure},
		{admins, ObjectSequence, ActionSequenceOverride},
		{admins, ObjectCategory, ActionCategoryManage},
		{admins, ObjectNotification, ActionNotificationSendCustom},
		{admins, ObjectEmailJob, ActionEmailJobView},
		{admins, ObjectEmailJob, ActionEmailJobRetrigger},
		{admins, ObjectAuditLog, ActionAuditLogView},
	}

	for _, grant := range grants {
		for _, role := range grant.roles {
			if _, err := enforcer.AddPolicy(role, grant.object, grant.action); err != nil {
				return err
			}
		}
	}
	return nil
}
