package workflow

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/store"
)

type mockNeedRepo struct {
	mock.Mock
}

func (m *mockNeedRepo) ListNeeds(ctx context.Context, sel model.Selection, onlyUnreconciled bool) ([]model.NeedRecord, error) {
	args := m.Called(ctx, sel, onlyUnreconciled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.NeedRecord), args.Error(1)
}

func (m *mockNeedRepo) GetNeed(ctx context.Context, id string) (*model.NeedRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NeedRecord), args.Error(1)
}

func (m *mockNeedRepo) UpdateNeed(ctx context.Context, id string, u store.NeedUpdate) error {
	return m.Called(ctx, id, u).Error(0)
}

func (m *mockNeedRepo) InsertNeeds(ctx context.Context, needs []model.NeedRecord) (int, error) {
	args := m.Called(ctx, needs)
	return args.Int(0), args.Error(1)
}

func (m *mockNeedRepo) ResetReconciled(ctx context.Context, sel model.Selection) (int, error) {
	args := m.Called(ctx, sel)
	return args.Int(0), args.Error(1)
}
