package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedWithSeat(t *testing.T, f *fixture) (*models.SubscriptionRequest, *ApprovalResult) {
	t.Helper()
	req := f.verifiedRequest(t, true)
	res, err := f.workflow.Approve(context.Background(), ApproveCommand{RequestID: req.ID, AdminID: f.admin})
	require.NoError(t, err)
	return req, res
}

func TestCancelSubscription_ReleasesSeat(t *testing.T) {
	f := newFixture(t, 1)
	req, res := approvedWithSeat(t, f)
	require.Equal(t, 1, f.activeReservations())

	sub, err := f.workflow.CancelSubscription(context.Background(), CancelCommand{
		SubscriptionID: res.SubscriptionID,
		ActorID:        req.UserID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	require.NotNil(t, sub.CancelledBy)
	assert.Equal(t, req.UserID, *sub.CancelledBy)
	assert.Equal(t, 0, f.activeReservations())
	assert.Contains(t, f.notifier.kinds(), models.NotificationSubscriptionCancelled)
	assert.Contains(t, f.auditActions(), models.AuditActionSubscriptionCancelled)

	// the freed seat goes to the next approval
	_, next := approvedWithSeat(t, f)
	assert.Equal(t, models.SubscriptionStatusActive, next.Status)
}

func TestCancelSubscription_Authorization(t *testing.T) {
	f := newFixture(t, 2)
	_, res := approvedWithSeat(t, f)

	_, err := f.workflow.CancelSubscription(context.Background(), CancelCommand{
		SubscriptionID: res.SubscriptionID,
		ActorID:        uuid.New(),
	})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 1, f.activeReservations())

	_, err = f.workflow.CancelSubscription(context.Background(), CancelCommand{
		SubscriptionID: res.SubscriptionID,
		ActorID:        f.admin,
		AsAdmin:        true,
		Reason:         "graduated",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.activeReservations())
}

func TestCancelSubscription_TerminalStatus(t *testing.T) {
	f := newFixture(t, 2)
	req, res := approvedWithSeat(t, f)
	cmd := CancelCommand{SubscriptionID: res.SubscriptionID, ActorID: req.UserID}

	_, err := f.workflow.CancelSubscription(context.Background(), cmd)
	require.NoError(t, err)

	_, err = f.workflow.CancelSubscription(context.Background(), cmd)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestCancelSubscription_Waitlisted(t *testing.T) {
	f := newFixture(t, 1)
	seated := f.verifiedRequest(t, true)
	req := f.verifiedRequest(t, true)
	_, err := f.workflow.Approve(context.Background(), ApproveCommand{RequestID: seated.ID, AdminID: f.admin})
	require.NoError(t, err)
	res, err := f.workflow.Approve(context.Background(), ApproveCommand{RequestID: req.ID, AdminID: f.admin})
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusWaitlisted, res.Status)

	sub, err := f.workflow.CancelSubscription(context.Background(), CancelCommand{SubscriptionID: res.SubscriptionID, ActorID: req.UserID})
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.Equal(t, 1, f.activeReservations(), "the seated subscription keeps its seat")
}

func TestExpireDue(t *testing.T) {
	f := newFixture(t, 3)
	_, res := approvedWithSeat(t, f)
	current := f.addSubscription(uuid.New(), models.SubscriptionStatusActive, dateOf(fixtureNow).AddDate(0, 0, 3))
	endsToday := f.addSubscription(uuid.New(), models.SubscriptionStatusActive, dateOf(fixtureNow))
	cancelled := f.addSubscription(uuid.New(), models.SubscriptionStatusCancelled, dateOf(fixtureNow).AddDate(0, 0, -40))

	// jump past the approved subscription's end date
	f.clock.Set(res.EndDate.AddDate(0, 0, 1).Add(8 * time.Hour))

	result, err := f.workflow.ExpireDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Expired)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, f.activeReservations())

	for _, id := range []uuid.UUID{res.SubscriptionID, current.ID, endsToday.ID} {
		assert.Equal(t, models.SubscriptionStatusExpired, f.store.subs[id].Status)
	}
	assert.Equal(t, models.SubscriptionStatusCancelled, f.store.subs[cancelled.ID].Status)
	assert.Contains(t, f.auditActions(), models.AuditActionSubscriptionExpired)

	again, err := f.workflow.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Expired)
}

func TestExpireDue_KeepsSubscriptionEndingToday(t *testing.T) {
	f := newFixture(t, 3)
	sub := f.addSubscription(uuid.New(), models.SubscriptionStatusActive, dateOf(fixtureNow))

	result, err := f.workflow.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Expired)
	assert.Equal(t, models.SubscriptionStatusActive, f.store.subs[sub.ID].Status)
}

func TestExpireDue_ContextCancelled(t *testing.T) {
	f := newFixture(t, 3)
	f.addSubscription(uuid.New(), models.SubscriptionStatusActive, dateOf(fixtureNow).AddDate(0, 0, -2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.workflow.ExpireDue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
