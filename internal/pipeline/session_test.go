package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resolution-cli/pkg/oracle"
)

func TestSession_CapabilitiesCached(t *testing.T) {
	client := &mockOracle{}
	caps := &oracle.Capabilities{DefaultProvider: "openai", Collectors: []oracle.CollectorInfo{{ID: "CollectorWeb"}}}
	client.On("Capabilities", mock.Anything, testAccessCode).Return(caps, nil).Once()

	s := NewSession(client, testAccessCode)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Capabilities(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "openai", got.DefaultProvider)
		}()
	}
	wg.Wait()

	got, err := s.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, got.HasCollector("CollectorWeb"))
	client.AssertNumberOfCalls(t, "Capabilities", 1)
}

func TestSession_CapabilitiesAuthFailureTearsDown(t *testing.T) {
	client := &mockOracle{}
	client.On("Capabilities", mock.Anything, testAccessCode).Return(nil, &oracle.AuthError{}).Once()

	s := NewSession(client, testAccessCode)
	_, err := s.Capabilities(context.Background())
	require.Error(t, err)
	assert.True(t, oracle.IsAuth(err))
	assert.False(t, s.Active())

	_, err = s.Capabilities(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSession_Teardown(t *testing.T) {
	s := NewSession(&mockOracle{}, "code")
	s.SetDefaults("p", "m")

	code, err := s.AccessCode()
	require.NoError(t, err)
	assert.Equal(t, "code", code)

	s.Teardown()
	_, err = s.AccessCode()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, s.Active())

	provider, model := s.Defaults()
	assert.Equal(t, "p", provider)
	assert.Equal(t, "m", model)
}

func TestSession_EmptyCodeIsInactive(t *testing.T) {
	s := NewSession(&mockOracle{}, "")
	assert.False(t, s.Active())
	_, err := s.AccessCode()
	assert.ErrorIs(t, err, ErrNoSession)
}
