package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceCall struct {
	domain  string
	service string
	data    map[string]any
}

// stubCaller records calls to the capability host, shared by the dispatcher
// and engine tests.
type stubCaller struct {
	mu    sync.Mutex
	calls []serviceCall
	err   error
}

func (c *stubCaller) Call(ctx context.Context, domain, service string, data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, serviceCall{domain: domain, service: service, data: data})
	return nil
}

func (c *stubCaller) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestCommandDispatcher_Success(t *testing.T) {
	caller := &stubCaller{}
	dispatcher := NewCommandDispatcher(caller, nil)

	err := dispatcher.Dispatch(context.Background(), map[string]any{
		"domain":  "light",
		"service": "turn_on",
		"data":    map[string]any{"entity_id": "light.kitchen"},
	})
	require.NoError(t, err)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, "light", caller.calls[0].domain)
	assert.Equal(t, "turn_on", caller.calls[0].service)
	assert.Equal(t, map[string]any{"entity_id": "light.kitchen"}, caller.calls[0].data)
}

func TestCommandDispatcher_MissingDomain(t *testing.T) {
	caller := &stubCaller{}
	dispatcher := NewCommandDispatcher(caller, nil)

	err := dispatcher.Dispatch(context.Background(), map[string]any{
		"service": "turn_on",
		"data":    map[string]any{},
	})
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Empty(t, dispatchErr.Domain)
	assert.Equal(t, "turn_on", dispatchErr.Service)
	assert.Contains(t, dispatchErr.Err.Error(), `missing key "domain"`)
	assert.Equal(t, 0, caller.callCount())
}

func TestCommandDispatcher_MissingData(t *testing.T) {
	caller := &stubCaller{}
	dispatcher := NewCommandDispatcher(caller, nil)

	err := dispatcher.Dispatch(context.Background(), map[string]any{
		"domain":  "light",
		"service": "turn_on",
	})
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, "light", dispatchErr.Domain)
	assert.Contains(t, dispatchErr.Err.Error(), `missing key "data"`)
	assert.Equal(t, 0, caller.callCount())
}

func TestCommandDispatcher_NonStringDomain(t *testing.T) {
	caller := &stubCaller{}
	dispatcher := NewCommandDispatcher(caller, nil)

	err := dispatcher.Dispatch(context.Background(), map[string]any{
		"domain":  float64(7),
		"service": "turn_on",
		"data":    map[string]any{},
	})
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Contains(t, dispatchErr.Err.Error(), "want string")
	assert.Equal(t, 0, caller.callCount())
}

func TestCommandDispatcher_HostFailure(t *testing.T) {
	caller := &stubCaller{err: errors.New("service light.turn_on not found")}
	dispatcher := NewCommandDispatcher(caller, nil)

	err := dispatcher.Dispatch(context.Background(), map[string]any{
		"domain":  "light",
		"service": "turn_on",
		"data":    map[string]any{"entity_id": "light.porch"},
	})
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, "light", dispatchErr.Domain)
	assert.Equal(t, "turn_on", dispatchErr.Service)
	assert.Equal(t, map[string]any{"entity_id": "light.porch"}, dispatchErr.Data)
	assert.ErrorContains(t, dispatchErr.Err, "not found")
}

func TestCommandDispatcher_GuardrailsBlock(t *testing.T) {
	caller := &stubCaller{}
	guardrails := NewCommandGuardrails()
	guardrails.Allow("light", "turn_on")
	dispatcher := NewCommandDispatcher(caller, guardrails)

	err := dispatcher.Dispatch(context.Background(), map[string]any{
		"domain":  "lock",
		"service": "unlock",
		"data":    map[string]any{},
	})
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Contains(t, dispatchErr.Err.Error(), "not in allowlist")
	assert.Equal(t, 0, caller.callCount())

	err = dispatcher.Dispatch(context.Background(), map[string]any{
		"domain":  "light",
		"service": "turn_on",
		"data":    map[string]any{},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, caller.callCount())
}
