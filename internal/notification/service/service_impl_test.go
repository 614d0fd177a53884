package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/notification/realtime"
	"github.com/smallbiznis/procura/internal/notification/repository"
	"github.com/smallbiznis/procura/internal/notification/service"
	"github.com/smallbiznis/procura/internal/notification/template"
	organizationdomain "github.com/smallbiznis/procura/internal/organization/domain"
	requisitiondomain "github.com/smallbiznis/procura/internal/requisition/domain"
	"github.com/smallbiznis/procura/internal/testkit"
	"github.com/smallbiznis/procura/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	env    *testkit.Env
	hub    *realtime.Hub
	router domain.Service
}

func newFixture(t *testing.T, publisher realtime.Publisher) *fixture {
	env := testkit.New(t)
	hub := realtime.NewHub()
	if publisher == nil {
		publisher = hub
	}
	renderer, err := template.NewRenderer()
	require.NoError(t, err)

	router := service.NewService(service.Params{
		DB:            env.DB,
		Log:           env.Log,
		Repo:          repository.Provide(),
		GenID:         env.Node,
		Clock:         env.Clock,
		Organizations: env.Organizations,
		Audit:         env.Audit,
		Publisher:     publisher,
		Renderer:      renderer,
		Config:        config.NewStaticNotificationConfigHolder(config.DefaultNotificationConfig()),
		Metrics:       env.Metrics,
	})
	return &fixture{env: env, hub: hub, router: router}
}

func (f *fixture) requisition(t *testing.T, orgID, requester snowflake.ID, title string) snowflake.ID {
	t.Helper()
	now := f.env.Clock.Now()
	row := requisitiondomain.Requisition{
		ID:          f.env.Node.Generate(),
		OrgID:       orgID,
		Title:       title,
		Amount:      decimal.NewFromInt(1200),
		Currency:    "USD",
		Status:      requisitiondomain.StatusSubmitted,
		RequesterID: requester,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.env.DB.Create(&row).Error)
	return row.ID
}

func (f *fixture) emailJobs(t *testing.T, orgID snowflake.ID) []domain.EmailJob {
	t.Helper()
	var jobs []domain.EmailJob
	require.NoError(t, f.env.DB.Where("org_id = ?", orgID).Order("id asc").Find(&jobs).Error)
	return jobs
}

func event(orgID snowflake.ID, kind domain.Kind, actor, subject snowflake.ID) domain.Event {
	return domain.Event{OrgID: orgID, Kind: kind, ActorUserID: actor, SubjectID: &subject}
}

func TestNotifySubmittedReachesReviewersExceptActor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	orgID := f.env.Org(t, "Alpha", 1, map[snowflake.ID]string{
		2: organizationdomain.RoleApprover,
		3: organizationdomain.RoleMember,
		4: organizationdomain.RoleReviewer,
		5: organizationdomain.RoleAdmin,
	})
	reqID := f.requisition(t, orgID, 5, "Laptops")

	recipients, err := f.router.Notify(ctx, event(orgID, domain.KindSubmitted, 5, reqID))
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{1, 2, 4}, recipients)

	jobs := f.emailJobs(t, orgID)
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		assert.Equal(t, domain.EmailPending, job.Status)
		assert.Contains(t, job.Subject, "Alpha")
		assert.Contains(t, job.Body, "Laptops")
		assert.Equal(t, template.RequisitionSubmitted, job.BodyTemplateID)
	}
}

func TestNotifyIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	orgID := f.env.Org(t, "Alpha", 1, map[snowflake.ID]string{2: organizationdomain.RoleMember})
	reqID := f.requisition(t, orgID, 2, "Chairs")

	first, err := f.router.Notify(ctx, event(orgID, domain.KindSubmitted, 2, reqID))
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := f.router.Notify(ctx, event(orgID, domain.KindSubmitted, 2, reqID))
	require.NoError(t, err)
	assert.Empty(t, again)

	count, err := f.router.UnreadCount(ctx, 1, orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.emailJobs(t, orgID), 1)
}

func TestNotifyRejectsSubjectOfAnotherOrganization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	orgA := f.env.Org(t, "Alpha", 1, nil)
	orgB := f.env.Org(t, "Beta", 2, nil)
	reqInB := f.requisition(t, orgB, 2, "Desks")

	_, err := f.router.Notify(ctx, event(orgA, domain.KindApproved, 1, reqInB))
	assert.ErrorIs(t, err, domain.ErrSubjectNotFound)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.router.Notify(ctx, domain.Event{OrgID: orgA, Kind: domain.KindApproved, ActorUserID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestNotifyCustomRequiresMembers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	orgA := f.env.Org(t, "Alpha", 1, map[snowflake.ID]string{3: organizationdomain.RoleMember})
	f.env.Org(t, "Beta", 2, nil)

	_, err := f.router.Notify(ctx, domain.Event{
		OrgID: orgA, Kind: domain.KindCustom, ActorUserID: 1,
		Recipients: []snowflake.ID{3, 2}, Title: "Stocktake", Message: "Friday",
	})
	assert.ErrorIs(t, err, domain.ErrRecipientNotMember)

	_, err = f.router.Notify(ctx, domain.Event{
		OrgID: orgA, Kind: domain.KindCustom, ActorUserID: 1,
		Recipients: []snowflake.ID{3}, Title: "Stocktake", TemplateID: "welcome",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTemplate)

	recipients, err := f.router.Notify(ctx, domain.Event{
		OrgID: orgA, Kind: domain.KindCustom, ActorUserID: 1,
		Recipients: []snowflake.ID{3, 3}, Title: "Stocktake", Message: "Friday",
	})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{3}, recipients)

	jobs := f.emailJobs(t, orgA)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Stocktake (Alpha)", jobs[0].Subject)
}

func TestApprovedEmailCarriesTheRequisitionsOrganization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	const multiOrgUser snowflake.ID = 5
	orgA := f.env.Org(t, "Alpha Org", 1, map[snowflake.ID]string{multiOrgUser: organizationdomain.RoleMember})
	orgB := f.env.Org(t, "Beta Co", 2, map[snowflake.ID]string{multiOrgUser: organizationdomain.RoleMember})
	reqInB := f.requisition(t, orgB, multiOrgUser, "Monitors")

	session := f.hub.Subscribe(multiOrgUser, orgA)
	defer session.Close()

	recipients, err := f.router.Notify(ctx, event(orgB, domain.KindApproved, 2, reqInB))
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{multiOrgUser}, recipients)

	jobs := f.emailJobs(t, orgB)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Your requisition was approved in Beta Co", jobs[0].Subject)
	assert.Contains(t, jobs[0].Body, "Beta Co")
	assert.NotContains(t, jobs[0].Body, "Alpha Org")
	assert.Equal(t, testkit.Email(multiOrgUser), jobs[0].RecipientEmail)
	assert.Empty(t, f.emailJobs(t, orgA))

	// The session is viewing Alpha, so nothing arrives live.
	assert.Empty(t, session.Events())
}

func TestSubmissionWhileAnotherOrgSelectedShowsAfterSwitch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	const reviewer snowflake.ID = 7
	orgA := f.env.Org(t, "Alpha", 1, map[snowflake.ID]string{reviewer: organizationdomain.RoleReviewer})
	orgB := f.env.Org(t, "Beta", 2, map[snowflake.ID]string{reviewer: organizationdomain.RoleReviewer})
	reqInA := f.requisition(t, orgA, 1, "Printer")

	session := f.hub.Subscribe(reviewer, orgB)
	defer session.Close()

	_, err := f.router.Notify(ctx, event(orgA, domain.KindSubmitted, 1, reqInA))
	require.NoError(t, err)
	assert.Empty(t, session.Events())

	inB, _, err := f.router.List(ctx, reviewer, orgB, domain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, inB)

	require.NoError(t, f.hub.SwitchOrg(reviewer, session.ID(), orgA))
	reset := <-session.Events()
	assert.Equal(t, realtime.EventReset, reset.Type)
	assert.Equal(t, orgA.String(), reset.OrgID)

	inA, _, err := f.router.List(ctx, reviewer, orgA, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, inA, 1)
	assert.Equal(t, orgA, inA[0].OrgID)
	assert.Equal(t, domain.KindSubmitted, inA[0].Type)

	// Live delivery now follows the selected org.
	reqInA2 := f.requisition(t, orgA, 1, "Toner")
	_, err = f.router.Notify(ctx, event(orgA, domain.KindSubmitted, 1, reqInA2))
	require.NoError(t, err)
	require.Len(t, session.Events(), 1)
	live := <-session.Events()
	assert.Equal(t, realtime.EventNotification, live.Type)
	assert.Equal(t, orgA, live.Notification.OrgID)
}

func TestMarkAllReadAndClearAllAreScopedToOneOrganization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	const user snowflake.ID = 9
	orgA := f.env.Org(t, "Alpha", 1, map[snowflake.ID]string{user: organizationdomain.RoleApprover})
	orgB := f.env.Org(t, "Beta", 2, map[snowflake.ID]string{user: organizationdomain.RoleApprover})

	_, err := f.router.Notify(ctx, event(orgA, domain.KindSubmitted, 1, f.requisition(t, orgA, 1, "A1")))
	require.NoError(t, err)
	_, err = f.router.Notify(ctx, event(orgA, domain.KindSubmitted, 1, f.requisition(t, orgA, 1, "A2")))
	require.NoError(t, err)
	_, err = f.router.Notify(ctx, event(orgB, domain.KindSubmitted, 2, f.requisition(t, orgB, 2, "B1")))
	require.NoError(t, err)

	updated, err := f.router.MarkAllRead(ctx, user, orgA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	unreadA, err := f.router.UnreadCount(ctx, user, orgA)
	require.NoError(t, err)
	assert.Zero(t, unreadA)
	unreadB, err := f.router.UnreadCount(ctx, user, orgB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unreadB)

	cleared, err := f.router.ClearAll(ctx, user, orgB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	inA, _, err := f.router.List(ctx, user, orgA, domain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, inA, 2)

	// The acting owner is never among the recipients.
	ownerUnread, err := f.router.UnreadCount(ctx, 2, orgB)
	require.NoError(t, err)
	assert.Zero(t, ownerUnread)
}

func TestInboxOperationsRejectOtherOrganizations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	const user snowflake.ID = 9
	orgA := f.env.Org(t, "Alpha", 1, map[snowflake.ID]string{user: organizationdomain.RoleApprover})
	orgB := f.env.Org(t, "Beta", 2, map[snowflake.ID]string{user: organizationdomain.RoleApprover})

	_, err := f.router.Notify(ctx, event(orgA, domain.KindSubmitted, 1, f.requisition(t, orgA, 1, "A1")))
	require.NoError(t, err)
	list, _, err := f.router.List(ctx, user, orgA, domain.ListRequest{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	assert.ErrorIs(t, f.router.MarkRead(ctx, user, orgB, id), domain.ErrNotFound)
	assert.ErrorIs(t, f.router.Delete(ctx, user, orgB, id), domain.ErrNotFound)
	assert.ErrorIs(t, f.router.MarkRead(ctx, 1, orgA, id), domain.ErrNotFound)

	require.NoError(t, f.router.MarkRead(ctx, user, orgA, id))
	require.NoError(t, f.router.MarkRead(ctx, user, orgA, id))
	unread, _, err := f.router.List(ctx, user, orgA, domain.ListRequest{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)

	require.NoError(t, f.router.Delete(ctx, user, orgA, id))
	assert.ErrorIs(t, f.router.Delete(ctx, user, orgA, id), domain.ErrNotFound)

	_, err = f.router.UnreadCount(ctx, user, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestEmailFailsClosedWithoutOrganizationName(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	orgID := f.env.Org(t, "Alpha", 1, map[snowflake.ID]string{2: organizationdomain.RoleMember})
	reqID := f.requisition(t, orgID, 2, "Forklift")
	require.NoError(t, f.env.DB.Model(&organizationdomain.Organization{}).
		Where("id = ?", orgID).Update("name", "").Error)

	recipients, err := f.router.Notify(ctx, event(orgID, domain.KindApproved, 1, reqID))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTemplate)
	deliveryErr, ok := domain.AsDeliveryError(err)
	require.True(t, ok)
	require.Len(t, deliveryErr.Failures, 1)

	// The notification itself is kept.
	assert.Equal(t, []snowflake.ID{2}, recipients)
	count, err := f.router.UnreadCount(ctx, 2, orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	jobs := f.emailJobs(t, orgID)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.EmailFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].LastError)
	assert.Contains(t, *jobs[0].LastError, "OrganizationName")
	assert.Empty(t, jobs[0].Body)

	// Retrigger while the name is still missing keeps the job failed.
	_, err = f.router.RetriggerEmail(ctx, orgID, jobs[0].ID)
	assert.ErrorIs(t, err, errs.ErrTemplate)

	require.NoError(t, f.env.DB.Model(&organizationdomain.Organization{}).
		Where("id = ?", orgID).Update("name", "Alpha").Error)

	job, err := f.router.RetriggerEmail(ctx, orgID, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmailPending, job.Status)
	assert.Contains(t, job.Body, "Alpha")

	_, err = f.router.RetriggerEmail(ctx, orgID, jobs[0].ID)
	assert.ErrorIs(t, err, domain.ErrEmailJobNotFailed)

	otherOrg := f.env.Org(t, "Beta", 3, nil)
	_, err = f.router.RetriggerEmail(ctx, otherOrg, jobs[0].ID)
	assert.ErrorIs(t, err, domain.ErrEmailJobNotFound)

	pending, _, err := f.router.ListEmailJobs(ctx, orgID, domain.ListEmailJobsRequest{Status: domain.EmailPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	_, _, err = f.router.ListEmailJobs(ctx, orgID, domain.ListEmailJobsRequest{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, snowflake.ID, snowflake.ID, realtime.Event) (int, error) {
	return 0, errors.New("connection refused")
}

func TestRealtimeFailureIsReportedAfterCommit(t *testing.T) {
	f := newFixture(t, failingPublisher{})
	ctx := t.Context()
	orgID := f.env.Org(t, "Alpha", 1, map[snowflake.ID]string{2: organizationdomain.RoleMember})
	reqID := f.requisition(t, orgID, 2, "Chairs")

	recipients, err := f.router.Notify(ctx, event(orgID, domain.KindRejected, 1, reqID))
	assert.ErrorIs(t, err, errs.ErrTransport)
	assert.Equal(t, []snowflake.ID{2}, recipients)

	jobs := f.emailJobs(t, orgID)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.EmailPending, jobs[0].Status)
}
