package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/store"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) ListNeeds(ctx context.Context, sel model.Selection, onlyUnreconciled bool) ([]model.NeedRecord, error) {
	args := m.Called(ctx, sel, onlyUnreconciled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.NeedRecord), args.Error(1)
}

func (m *mockRepo) GetNeed(ctx context.Context, id string) (*model.NeedRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NeedRecord), args.Error(1)
}

func (m *mockRepo) UpdateNeed(ctx context.Context, id string, u store.NeedUpdate) error {
	return m.Called(ctx, id, u).Error(0)
}

func (m *mockRepo) InsertNeeds(ctx context.Context, needs []model.NeedRecord) (int, error) {
	args := m.Called(ctx, needs)
	return args.Int(0), args.Error(1)
}

func (m *mockRepo) ResetReconciled(ctx context.Context, sel model.Selection) (int, error) {
	args := m.Called(ctx, sel)
	return args.Int(0), args.Error(1)
}

func (m *mockRepo) ListInventory(ctx context.Context, highwayID string, t model.AssetType, activeOnly bool) ([]model.InventoryRecord, error) {
	args := m.Called(ctx, highwayID, t, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.InventoryRecord), args.Error(1)
}

func (m *mockRepo) InsertInventory(ctx context.Context, records []model.InventoryRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

func (m *mockRepo) GetTolerance(ctx context.Context, highwayID string, t model.AssetType) (float64, error) {
	args := m.Called(ctx, highwayID, t)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockRepo) SetTolerance(ctx context.Context, highwayID string, t model.AssetType, meters float64) error {
	return m.Called(ctx, highwayID, t, meters).Error(0)
}
