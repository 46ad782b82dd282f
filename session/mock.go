package session

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// MockIdentityProvider implements interfaces.IdentityProvider for tests.
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyProof(ctx context.Context, token string) (interfaces.IdentityProof, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(interfaces.IdentityProof), args.Error(1)
}
