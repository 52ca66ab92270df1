package async

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLaneStore struct {
	mock.Mock
}

func (m *mockLaneStore) find(ctx context.Context, lane string) (laneDoc, error) {
	args := m.Called(ctx, lane)
	return args.Get(0).(laneDoc), args.Error(1)
}

func (m *mockLaneStore) advance(ctx context.Context, info Info) error {
	args := m.Called(ctx, info)
	return args.Error(0)
}

func TestMongoProvider_LaneInfo(t *testing.T) {
	ctx := context.Background()
	store := new(mockLaneStore)
	p := &MongoProvider{store: store}

	store.On("find", ctx, "async").Return(laneDoc{Lane: "async", LastIndexedTo: 1200}, nil)
	store.On("find", ctx, "missing").Return(laneDoc{}, ErrLaneNotFound)
	store.On("find", ctx, "broken").Return(laneDoc{}, errors.New("connection reset"))

	info, err := p.LaneInfo(ctx, "async")
	require.NoError(t, err)
	assert.Equal(t, Info{Lane: "async", LastIndexedTo: 1200}, info)

	_, err = p.LaneInfo(ctx, "missing")
	assert.ErrorIs(t, err, ErrLaneNotFound)

	_, err = p.LaneInfo(ctx, "broken")
	assert.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, ErrLaneNotFound)

	store.AssertExpectations(t)
}

func TestMongoProvider_Report(t *testing.T) {
	ctx := context.Background()
	store := new(mockLaneStore)
	p := &MongoProvider{store: store}

	info := Info{Lane: "async", LastIndexedTo: 1400}
	store.On("advance", ctx, info).Return(nil).Once()
	require.NoError(t, p.Report(ctx, info))

	store.On("advance", ctx, info).Return(errors.New("timeout")).Once()
	assert.ErrorContains(t, p.Report(ctx, info), "timeout")

	assert.Error(t, p.Report(ctx, Info{LastIndexedTo: 1}))
	store.AssertExpectations(t)
}
