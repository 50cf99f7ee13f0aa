package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/DukeRupert/plantleads/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEntitlements records which plan operation a command invoked.
type recordingEntitlements struct {
	service.EntitlementService

	calls []string
	days  int
}

func (r *recordingEntitlements) UpgradePlan(ctx context.Context, userID uuid.UUID, name domain.PlanName) (*domain.Subscription, error) {
	r.calls = append(r.calls, "upgrade:"+string(name))
	return &domain.Subscription{UserID: userID, Plan: domain.Plan{Name: name}}, nil
}

func (r *recordingEntitlements) DowngradeToFree(ctx context.Context, userID uuid.UUID, cause string) (*domain.Subscription, error) {
	r.calls = append(r.calls, "downgrade:"+cause)
	return &domain.Subscription{UserID: userID, Plan: domain.Plan{Name: domain.PlanFree}}, nil
}

func (r *recordingEntitlements) GrantPlan(ctx context.Context, userID uuid.UUID, name domain.PlanName, days int) (*domain.Subscription, error) {
	r.calls = append(r.calls, "grant:"+string(name))
	r.days = days
	return &domain.Subscription{UserID: userID, Plan: domain.Plan{Name: name}}, nil
}

func newTestApp() (*app, *recordingEntitlements, *bytes.Buffer) {
	ent := &recordingEntitlements{}
	out := &bytes.Buffer{}
	return &app{entitlements: ent, out: out}, ent, out
}

func TestSetPlan_FreeDowngrades(t *testing.T) {
	a, ent, out := newTestApp()
	userID := uuid.NewString()

	require.NoError(t, a.setPlan(context.Background(), []string{userID, "free"}))
	require.NoError(t, a.setPlan(context.Background(), []string{userID, "premium"}))

	assert.Equal(t, []string{"downgrade:" + service.DowngradeRequested, "upgrade:premium"}, ent.calls)
	assert.Contains(t, out.String(), userID)
}

func TestGrant_DaysFlag(t *testing.T) {
	a, ent, _ := newTestApp()
	userID := uuid.NewString()

	require.NoError(t, a.grant(context.Background(), []string{userID, "basic", "-days", "7"}))
	assert.Equal(t, 7, ent.days)

	require.NoError(t, a.grant(context.Background(), []string{userID, "basic"}))
	assert.Equal(t, 30, ent.days)
}

func TestCommands_RejectBadArguments(t *testing.T) {
	a, ent, _ := newTestApp()
	ctx := context.Background()

	assert.ErrorIs(t, a.grant(ctx, []string{uuid.NewString()}), errUsage)
	assert.ErrorIs(t, a.setPlan(ctx, nil), errUsage)
	assert.ErrorIs(t, a.usage(ctx, []string{"a", "b"}), errUsage)
	assert.Error(t, a.startTrial(ctx, []string{"not-a-uuid"}))
	assert.Empty(t, ent.calls)
}

func TestCheckArgs(t *testing.T) {
	userID := uuid.NewString()

	tests := []struct {
		command string
		args    []string
		wantErr bool
	}{
		{command: "migrate"},
		{command: "seed-plans"},
		{command: "grant", args: []string{userID, "basic", "-days", "7"}},
		{command: "start-trial", args: []string{userID}},
		{command: "set-plan", args: []string{userID, "free"}},
		{command: "usage", args: []string{userID}},
		{command: "migrate", args: []string{"extra"}, wantErr: true},
		{command: "grant", args: []string{userID}, wantErr: true},
		{command: "start-trial", wantErr: true},
		{command: "set-plan", args: []string{userID}, wantErr: true},
		{command: "usage", args: []string{userID, "extra"}, wantErr: true},
		{command: "drop-everything", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			err := checkArgs(tt.command, tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, errUsage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRun_BadCommandLineSkipsDatabase(t *testing.T) {
	// An unreachable database must not mask the usage error.
	t.Setenv("DATABASE_URL", "postgres://127.0.0.1:1/unreachable")

	assert.ErrorIs(t, run("drop-everything", nil), errUsage)
	assert.ErrorIs(t, run("usage", nil), errUsage)
	assert.ErrorIs(t, run("set-plan", []string{uuid.NewString()}), errUsage)
}
