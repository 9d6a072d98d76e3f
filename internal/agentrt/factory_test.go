package agentrt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
)

type fakeProvider struct {
	name    string
	bindErr error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) BindAgent(_ context.Context, _ string, _ any, _ string) (Agent, error) {
	if p.bindErr != nil {
		return nil, p.bindErr
	}
	return fakeAgent{}, nil
}

type fakeAgent struct{}

func (fakeAgent) Reply(_ context.Context, _ string, _ RunConfig) (<-chan Event, Decisions, error) {
	ch := make(chan Event)
	close(ch)
	return ch, nil, nil
}

func TestClampMaxTurns(t *testing.T) {
	tests := []struct {
		name        string
		requested   int
		want        int
		wantClamped bool
	}{
		{"zero becomes default", 0, 1000, true},
		{"negative raised to minimum", -5, 1, true},
		{"above ceiling capped", 10001, 10000, true},
		{"far above ceiling capped", 20000, 10000, true},
		{"minimum passes through", 1, 1, false},
		{"ceiling passes through", 10000, 10000, false},
		{"in range passes through", 42, 42, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := ClampMaxTurns(tt.requested)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantClamped, clamped)
		})
	}
}

func TestFactory_BuildClampsTurnCapWithoutError(t *testing.T) {
	f := NewFactory(logger.Default())
	f.Register(&fakeProvider{name: "mock"})

	_, run, err := f.Build(context.Background(), "sess-1", nil, AgentConfig{
		Provider: "mock",
		Model:    "m-1",
		MaxTurns: 20000,
	})
	require.NoError(t, err)
	require.Equal(t, 10000, run.MaxTurns)
}

func TestFactory_BuildDerivesRunConfig(t *testing.T) {
	f := NewFactory(logger.Default())
	f.Register(&fakeProvider{name: "mock"})

	retry := json.RawMessage(`{"max_attempts":3}`)
	_, run, err := f.Build(context.Background(), "sess-1", nil, AgentConfig{
		Provider:    "mock",
		Model:       "m-1",
		Scheduler:   "batch",
		MaxTurns:    7,
		RetryPolicy: retry,
	})
	require.NoError(t, err)
	require.Equal(t, "sess-1", run.SessionID)
	require.Equal(t, "batch", run.Scheduler)
	require.Equal(t, 7, run.MaxTurns)
	require.JSONEq(t, string(retry), string(run.RetryPolicy))
}

func TestFactory_BuildUnknownProviderIsInitializationError(t *testing.T) {
	f := NewFactory(logger.Default())

	_, _, err := f.Build(context.Background(), "sess-1", nil, AgentConfig{Provider: "ghost", Model: "m-1"})
	require.Error(t, err)
	tagged, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindAgentInitialization, tagged.Kind)
}

func TestFactory_BuildBindFailureIsInitializationError(t *testing.T) {
	f := NewFactory(logger.Default())
	f.Register(&fakeProvider{name: "mock", bindErr: errs.New(errs.KindAgentIntegration, "runtime unavailable")})

	_, _, err := f.Build(context.Background(), "sess-1", nil, AgentConfig{Provider: "mock", Model: "m-1"})
	require.Error(t, err)
	tagged, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindAgentInitialization, tagged.Kind)
	require.Contains(t, err.Error(), "provider=mock")
	require.Contains(t, err.Error(), "model=m-1")
}

func TestFactory_BuildRejectsEmptyProviderOrModel(t *testing.T) {
	f := NewFactory(logger.Default())
	f.Register(&fakeProvider{name: "mock"})

	_, _, err := f.Build(context.Background(), "sess-1", nil, AgentConfig{Model: "m-1"})
	require.Error(t, err)
	tagged, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindConfiguration, tagged.Kind)

	_, _, err = f.Build(context.Background(), "sess-1", nil, AgentConfig{Provider: "mock"})
	require.Error(t, err)
}
