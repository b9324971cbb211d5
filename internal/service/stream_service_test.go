package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/civicpulse-api/internal/broker"
	"github.com/civicpulse/civicpulse-api/internal/dto"
)

type fakeReportSource struct {
	snapshots [][]dto.ReportResponse
	calls     int
}

func (f *fakeReportSource) List(ctx context.Context) ([]dto.ReportResponse, error) {
	snapshot := f.snapshots[f.calls%len(f.snapshots)]
	f.calls++
	return snapshot, nil
}

type fakeProfileSource struct {
	profiles map[string]*dto.ProfileResponse
}

func (f *fakeProfileSource) Me(ctx context.Context, uid string) (*dto.ProfileResponse, error) {
	return f.profiles[uid], nil
}

func newTestStream(t *testing.T) (*StreamService, *fakeReportSource, *fakeProfileSource) {
	t.Helper()
	hub := broker.NewHub(4)
	t.Cleanup(hub.Close)

	reports := &fakeReportSource{snapshots: [][]dto.ReportResponse{
		{{ID: "r1"}},
		{{ID: "r2"}, {ID: "r1"}},
	}}
	profiles := &fakeProfileSource{profiles: map[string]*dto.ProfileResponse{
		"u1": {UID: "u1", Points: 20},
	}}

	svc := NewStreamService(hub, nil, nil, nil, time.Second)
	svc.SetSources(reports, profiles)
	return svc, reports, profiles
}

func receive(t *testing.T, sub *broker.Subscription) interface{} {
	t.Helper()
	select {
	case payload, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestSubscribeReportsDeliversInitialSnapshot(t *testing.T) {
	svc, _, _ := newTestStream(t)

	sub, initial, err := svc.SubscribeReports(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, initial, 1)
	assert.Equal(t, "r1", initial[0].ID)
}

func TestNotifyReportsChangedFansOutFullSnapshot(t *testing.T) {
	svc, reports, _ := newTestStream(t)

	sub, _, err := svc.SubscribeReports(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	svc.NotifyReportsChanged(context.Background())

	payload := receive(t, sub)
	snapshot, ok := payload.([]dto.ReportResponse)
	require.True(t, ok)
	// Each delivery is the whole list, not a diff.
	require.Len(t, snapshot, 2)
	assert.Equal(t, "r2", snapshot[0].ID)
	assert.Equal(t, 2, reports.calls)
}

func TestNotifyProfileChangedTargetsOneUser(t *testing.T) {
	svc, _, _ := newTestStream(t)

	mine, _, err := svc.SubscribeProfile(context.Background(), "u1")
	require.NoError(t, err)
	defer mine.Close()

	theirs, _, err := svc.SubscribeProfile(context.Background(), "u2")
	require.NoError(t, err)
	defer theirs.Close()

	svc.NotifyProfileChanged(context.Background(), "u1")

	payload := receive(t, mine)
	profile, ok := payload.(*dto.ProfileResponse)
	require.True(t, ok)
	assert.Equal(t, "u1", profile.UID)

	select {
	case <-theirs.C():
		t.Fatal("unrelated profile subscriber received a snapshot")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifySkipsSnapshotBuildWithoutSubscribers(t *testing.T) {
	svc, reports, _ := newTestStream(t)

	svc.NotifyReportsChanged(context.Background())
	assert.Zero(t, reports.calls, "no snapshot should be built when nobody listens")
}

func TestSubscribersGauge(t *testing.T) {
	svc, _, _ := newTestStream(t)
	assert.Zero(t, svc.Subscribers())

	sub, _, err := svc.SubscribeReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), svc.Subscribers())

	sub.Close()
	assert.Zero(t, svc.Subscribers())
}
