package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tallywatt/tallywatt/pkg/storage"
	"github.com/tallywatt/tallywatt/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context) (types.Settings, int, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
}

func (m *MockDatabase) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	args := m.Called(ctx, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) LoadLedgerState(ctx context.Context) (types.LedgerState, int, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.LedgerState), args.Int(1), args.Error(2)
}

func (m *MockDatabase) SaveLedgerState(ctx context.Context, state types.LedgerState, version int) error {
	args := m.Called(ctx, state, version)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
