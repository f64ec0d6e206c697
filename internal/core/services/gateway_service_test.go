package services

import (
	"context"
	"errors"
	"testing"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"
	"camcast/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockBroadcastRepository struct {
	mock.Mock
}

func (m *MockBroadcastRepository) Create(ctx context.Context, record *domain.BroadcastRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockBroadcastRepository) GetByID(ctx context.Context, id domain.RecordID) (*domain.BroadcastRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BroadcastRecord), args.Error(1)
}

func (m *MockBroadcastRepository) End(ctx context.Context, id domain.RecordID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockBroadcastRepository) SetThumbnail(ctx context.Context, id domain.RecordID, thumbnail []byte) error {
	args := m.Called(ctx, id, thumbnail)
	return args.Error(0)
}

func (m *MockBroadcastRepository) ListActive(ctx context.Context) ([]*domain.BroadcastRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.BroadcastRecord), args.Error(1)
}

func (m *MockBroadcastRepository) ListActiveByOwner(ctx context.Context, owner domain.UserID) ([]*domain.BroadcastRecord, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.BroadcastRecord), args.Error(1)
}

func (m *MockBroadcastRepository) WatchActive(ctx context.Context) (<-chan domain.LiveSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan domain.LiveSnapshot), args.Error(1)
}

func (m *MockBroadcastRepository) WatchOwnerActive(ctx context.Context, owner domain.UserID) (<-chan domain.LiveSnapshot, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan domain.LiveSnapshot), args.Error(1)
}

func newTestGateway(t *testing.T) (*memory.MemoryBroadcastRepository, ports.BroadcastGateway) {
	t.Helper()
	repo := memory.NewMemoryBroadcastRepository()
	gw := NewBroadcastGateway(repo, zaptest.NewLogger(t).Sugar(), nil)
	return repo, gw
}

func TestGatewayCreateRecord(t *testing.T) {
	repo, gw := newTestGateway(t)
	ctx := context.Background()

	id, err := gw.CreateRecord(ctx, domain.Identity{ID: "user-1", DisplayName: "Alice"}, "  morning show  ")
	require.NoError(t, err)

	record, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "morning show", record.Title, "title must be trimmed")
	assert.True(t, record.Active)
	assert.False(t, record.StartTime.IsZero(), "start time is server-assigned")
	assert.Zero(t, record.ViewerCount)
}

func TestGatewayCreateRecordValidation(t *testing.T) {
	_, gw := newTestGateway(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		identity domain.Identity
		title    string
	}{
		{"empty title", domain.Identity{ID: "user-1"}, ""},
		{"blank title", domain.Identity{ID: "user-1"}, "   "},
		{"no identity", domain.Identity{}, "morning show"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.CreateRecord(ctx, tt.identity, tt.title)
			var valErr *domain.ValidationError
			assert.ErrorAs(t, err, &valErr)
		})
	}
}

func TestGatewayCreateRecordAnonymousName(t *testing.T) {
	repo, gw := newTestGateway(t)
	ctx := context.Background()

	id, err := gw.CreateRecord(ctx, domain.Identity{ID: "user-1"}, "morning show")
	require.NoError(t, err)
	record, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", record.BroadcasterName)
}

func TestGatewayCreateRecordClassifiesOwnerConflict(t *testing.T) {
	repo := new(MockBroadcastRepository)
	repo.On("ListActiveByOwner", mock.Anything, domain.UserID("user-1")).
		Return([]*domain.BroadcastRecord{}, nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.BroadcastRecord")).
		Return(domain.ErrOwnerAlreadyLive)
	gw := NewBroadcastGateway(repo, zaptest.NewLogger(t).Sugar(), nil)

	_, err := gw.CreateRecord(context.Background(), domain.Identity{ID: "user-1", DisplayName: "Alice"}, "morning show")
	var remErr *domain.RemoteError
	require.ErrorAs(t, err, &remErr)
	assert.Equal(t, domain.RemoteConflict, remErr.Kind)
	repo.AssertExpectations(t)
}

func TestGatewayCreateRecordClassifiesStoreFailure(t *testing.T) {
	repo := new(MockBroadcastRepository)
	repo.On("ListActiveByOwner", mock.Anything, domain.UserID("user-1")).
		Return([]*domain.BroadcastRecord{}, nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.BroadcastRecord")).
		Return(errors.New("connection reset"))
	gw := NewBroadcastGateway(repo, zaptest.NewLogger(t).Sugar(), nil)

	_, err := gw.CreateRecord(context.Background(), domain.Identity{ID: "user-1", DisplayName: "Alice"}, "morning show")
	var remErr *domain.RemoteError
	require.ErrorAs(t, err, &remErr)
	assert.Equal(t, domain.RemoteNetwork, remErr.Kind)
}

func TestGatewayCreateSweepsPriorActiveRecord(t *testing.T) {
	repo, gw := newTestGateway(t)
	ctx := context.Background()
	identity := domain.Identity{ID: "user-1", DisplayName: "Alice"}

	first, err := gw.CreateRecord(ctx, identity, "first")
	require.NoError(t, err)
	second, err := gw.CreateRecord(ctx, identity, "second")
	require.NoError(t, err)

	firstRecord, err := repo.GetByID(ctx, first)
	require.NoError(t, err)
	assert.True(t, firstRecord.Ended(), "first record must be swept before the second create")
	active, err := repo.ListActiveByOwner(ctx, identity.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second, active[0].ID)
}

func TestGatewayEndRecordIdempotent(t *testing.T) {
	_, gw := newTestGateway(t)
	ctx := context.Background()

	id, err := gw.CreateRecord(ctx, domain.Identity{ID: "user-1", DisplayName: "Alice"}, "morning show")
	require.NoError(t, err)

	require.NoError(t, gw.EndRecord(ctx, id))
	require.NoError(t, gw.EndRecord(ctx, id), "repeated EndRecord must succeed")
}

func TestGatewayEndRecordNotFound(t *testing.T) {
	_, gw := newTestGateway(t)

	err := gw.EndRecord(context.Background(), "rec-missing")
	var remErr *domain.RemoteError
	require.ErrorAs(t, err, &remErr)
	assert.Equal(t, domain.RemoteNotFound, remErr.Kind)
	assert.ErrorIs(t, err, domain.ErrBroadcastNotFound, "remote error must wrap the store sentinel")
}

func TestGatewayUpdateThumbnail(t *testing.T) {
	repo, gw := newTestGateway(t)
	ctx := context.Background()

	id, err := gw.CreateRecord(ctx, domain.Identity{ID: "user-1", DisplayName: "Alice"}, "morning show")
	require.NoError(t, err)
	require.NoError(t, gw.UpdateThumbnail(ctx, id, []byte("jpeg-bytes")))

	record, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), record.Thumbnail)

	err = gw.UpdateThumbnail(ctx, "rec-missing", []byte("x"))
	var remErr *domain.RemoteError
	require.ErrorAs(t, err, &remErr)
	assert.Equal(t, domain.RemoteNotFound, remErr.Kind)
}

func TestGatewayFetchRecordNotFound(t *testing.T) {
	_, gw := newTestGateway(t)

	_, err := gw.FetchRecord(context.Background(), "rec-missing")
	var remErr *domain.RemoteError
	require.ErrorAs(t, err, &remErr)
	assert.Equal(t, domain.RemoteNotFound, remErr.Kind)
}

func TestGatewaySweepEndsOnlyOwnedRecords(t *testing.T) {
	repo, gw := newTestGateway(t)
	ctx := context.Background()

	mine, err := gw.CreateRecord(ctx, domain.Identity{ID: "user-1", DisplayName: "Alice"}, "mine")
	require.NoError(t, err)
	theirs, err := gw.CreateRecord(ctx, domain.Identity{ID: "user-2", DisplayName: "Bob"}, "theirs")
	require.NoError(t, err)

	require.NoError(t, gw.SweepActiveRecordsForIdentity(ctx, "user-1"))

	mineRecord, err := repo.GetByID(ctx, mine)
	require.NoError(t, err)
	assert.False(t, mineRecord.Active, "owned record must be ended by the sweep")
	theirsRecord, err := repo.GetByID(ctx, theirs)
	require.NoError(t, err)
	assert.True(t, theirsRecord.Active, "foreign record must survive the sweep")
}

func TestGatewaySweepPropagatesEndFailure(t *testing.T) {
	repo := new(MockBroadcastRepository)
	stale := []*domain.BroadcastRecord{{ID: "rec-1", BroadcasterID: "user-1", Active: true}}
	repo.On("ListActiveByOwner", mock.Anything, domain.UserID("user-1")).Return(stale, nil)
	repo.On("End", mock.Anything, domain.RecordID("rec-1")).Return(errors.New("timeout"))
	gw := NewBroadcastGateway(repo, zaptest.NewLogger(t).Sugar(), nil)

	err := gw.SweepActiveRecordsForIdentity(context.Background(), "user-1")
	var remErr *domain.RemoteError
	require.ErrorAs(t, err, &remErr)
	assert.Equal(t, domain.RemoteNetwork, remErr.Kind)
	repo.AssertExpectations(t)
}

func TestGatewaySweepWithNothingActive(t *testing.T) {
	_, gw := newTestGateway(t)
	require.NoError(t, gw.SweepActiveRecordsForIdentity(context.Background(), "user-1"))
}
