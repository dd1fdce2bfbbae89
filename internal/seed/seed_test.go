package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/banca/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAdmins struct {
	mock.Mock
}

func (m *mockAdmins) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	args := m.Called(ctx, username, password)
	return args.Bool(0), args.Error(1)
}

func TestEnsureAdminUsesDefaultUsername(t *testing.T) {
	admins := &mockAdmins{}
	admins.On("EnsureAdmin", mock.Anything, "admin", "s3cret").Return(true, nil).Once()

	cfg := config.Config{Auth: config.AuthConfig{BootstrapPassword: "s3cret"}}
	require.NoError(t, EnsureAdmin(context.Background(), admins, cfg, zap.NewNop()))
	admins.AssertExpectations(t)
}

func TestEnsureAdminSkipsWithoutPassword(t *testing.T) {
	admins := &mockAdmins{}
	cfg := config.Config{Auth: config.AuthConfig{BootstrapUsername: "root"}}
	require.NoError(t, EnsureAdmin(context.Background(), admins, cfg, nil))
	admins.AssertNotCalled(t, "EnsureAdmin", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureAdminPropagatesErrors(t *testing.T) {
	admins := &mockAdmins{}
	boom := errors.New("boom")
	admins.On("EnsureAdmin", mock.Anything, "root", "pw").Return(false, boom)

	cfg := config.Config{Auth: config.AuthConfig{BootstrapUsername: " root ", BootstrapPassword: "pw"}}
	assert.ErrorIs(t, EnsureAdmin(context.Background(), admins, cfg, zap.NewNop()), boom)
}
