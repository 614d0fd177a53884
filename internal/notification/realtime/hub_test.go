package realtime

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	user  snowflake.ID = 10
	orgA  snowflake.ID = 100
	orgB  snowflake.ID = 200
	other snowflake.ID = 11
)

func event(org snowflake.ID) Event {
	return NotificationEvent(domain.Notification{ID: 1, OrgID: org, RecipientUserID: user, Title: "t"})
}

func TestPublishOnlyReachesSessionsViewingTheOrg(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	inB := hub.Subscribe(user, orgB)
	defer inB.Close()
	inA := hub.Subscribe(user, orgA)
	defer inA.Close()
	noOrg := hub.Subscribe(user, 0)
	defer noOrg.Close()
	otherUser := hub.Subscribe(other, orgA)
	defer otherUser.Close()

	delivered, err := hub.Publish(ctx, orgA, user, event(orgA))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	assert.Len(t, inA.Events(), 1)
	assert.Empty(t, inB.Events())
	assert.Empty(t, noOrg.Events())
	assert.Empty(t, otherUser.Events())
}

func TestSwitchOrgDrainsAndResets(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	session := hub.Subscribe(user, orgB)
	defer session.Close()

	_, _ = hub.Publish(ctx, orgB, user, event(orgB))
	_, _ = hub.Publish(ctx, orgA, user, event(orgA))
	require.Len(t, session.Events(), 1)

	require.NoError(t, hub.SwitchOrg(user, session.ID(), orgA))
	assert.Equal(t, orgA, session.SelectedOrg())

	require.Len(t, session.Events(), 1)
	reset := <-session.Events()
	assert.Equal(t, EventReset, reset.Type)
	assert.Equal(t, orgA.String(), reset.OrgID)

	delivered, _ := hub.Publish(ctx, orgA, user, event(orgA))
	assert.Equal(t, 1, delivered)
	delivered, _ = hub.Publish(ctx, orgB, user, event(orgB))
	assert.Equal(t, 0, delivered)
}

func TestEventTakenBeforeSwitchIsNoLongerCurrent(t *testing.T) {
	hub := NewHub()
	session := hub.Subscribe(user, orgA)
	defer session.Close()

	_, _ = hub.Publish(context.Background(), orgA, user, event(orgA))
	taken := <-session.Events()
	assert.True(t, session.Current(taken))

	require.NoError(t, hub.SwitchOrg(user, session.ID(), orgB))
	assert.False(t, session.Current(taken))

	reset := <-session.Events()
	assert.Equal(t, EventReset, reset.Type)
	assert.True(t, session.Current(reset))

	session.SwitchOrg(0)
	assert.False(t, session.Current(reset))
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	session := hub.Subscribe(user, orgA)
	defer session.Close()

	for range DefaultSessionBuffer {
		delivered, _ := hub.Publish(context.Background(), orgA, user, event(orgA))
		require.Equal(t, 1, delivered)
	}
	delivered, _ := hub.Publish(context.Background(), orgA, user, event(orgA))
	assert.Equal(t, 0, delivered)
}

func TestCloseRemovesSession(t *testing.T) {
	hub := NewHub()
	session := hub.Subscribe(user, orgA)
	assert.Equal(t, 1, hub.Sessions(user))

	session.Close()
	session.Close()
	assert.Equal(t, 0, hub.Sessions(user))
	assert.ErrorIs(t, hub.SwitchOrg(user, session.ID(), orgB), ErrSessionNotFound)
}

func TestChannelRoundTrip(t *testing.T) {
	channel := Channel(orgA, user)
	assert.Equal(t, "procura:notifications:100:10", channel)

	gotOrg, gotUser, err := ParseChannel(channel)
	require.NoError(t, err)
	assert.Equal(t, orgA, gotOrg)
	assert.Equal(t, user, gotUser)

	_, _, err = ParseChannel("other:100:10")
	assert.Error(t, err)
}
