package configcat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, body string, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	base := []Option{
		WithPollingMode(ManualPoll, time.Minute),
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
	}
	client, err := New("sdk-key", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.Refresh(context.Background()))
	return client
}

const multiTypeFlagsJSON = `{"f":{
	"boolFlag":{"t":0,"v":{"b":true}},
	"stringFlag":{"t":1,"v":{"s":"hello"}},
	"intFlag":{"t":2,"v":{"i":42}},
	"floatFlag":{"t":3,"v":{"d":3.14}}
},"s":[]}`

func TestClientGetBoolValue(t *testing.T) {
	client := newTestClient(t, multiTypeFlagsJSON)
	assert.True(t, client.GetBoolValue(context.Background(), "boolFlag", false, nil))
}

func TestClientGetStringValue(t *testing.T) {
	client := newTestClient(t, multiTypeFlagsJSON)
	assert.Equal(t, "hello", client.GetStringValue(context.Background(), "stringFlag", "default", nil))
}

func TestClientGetIntValue(t *testing.T) {
	client := newTestClient(t, multiTypeFlagsJSON)
	assert.Equal(t, 42, client.GetIntValue(context.Background(), "intFlag", 0, nil))
}

func TestClientGetFloatValue(t *testing.T) {
	client := newTestClient(t, multiTypeFlagsJSON)
	assert.Equal(t, 3.14, client.GetFloatValue(context.Background(), "floatFlag", 0, nil))
}

func TestClientGetBoolValueDetailsOnMissingKeyReturnsDefaultAndError(t *testing.T) {
	client := newTestClient(t, multiTypeFlagsJSON)
	details := client.GetBoolValueDetails(context.Background(), "nonexistent", true, nil)
	assert.True(t, details.Value)
	require.NotNil(t, details.Error)
	assert.Equal(t, ErrKindSettingNotFound, details.Error.Kind)
}

func TestClientGetBoolValueDetailsTypeMismatchFallsBackToDefault(t *testing.T) {
	client := newTestClient(t, multiTypeFlagsJSON)
	details := client.GetBoolValueDetails(context.Background(), "stringFlag", true, nil)
	assert.True(t, details.Value)
	require.NotNil(t, details.Error)
	assert.Equal(t, ErrKindTypeMismatch, details.Error.Kind)
}

func TestClientGetAllKeys(t *testing.T) {
	client := newTestClient(t, multiTypeFlagsJSON)
	keys, err := client.GetAllKeys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"boolFlag", "stringFlag", "intFlag", "floatFlag"}, keys)
}

func TestClientWaitForReadyReportsUpToDateFlagData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(boolFlagJSON))
	}))
	defer srv.Close()

	client, err := New("sdk-key",
		WithPollingMode(AutoPoll, time.Minute),
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	defer client.Close()

	state, err := client.WaitForReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HasUpToDateFlagData, state)
}

func TestClientOfflineOnline(t *testing.T) {
	client := newTestClient(t, multiTypeFlagsJSON)
	assert.False(t, client.IsOffline())
	client.SetOffline()
	assert.True(t, client.IsOffline())
	client.SetOnline()
	assert.False(t, client.IsOffline())
}

func TestClientRejectsEmptySDKKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestWithPollingModeClampsIntervalToMinimum(t *testing.T) {
	o := defaultOptions()
	WithPollingMode(AutoPoll, 10*time.Millisecond)(o)
	assert.Equal(t, minPollInterval, o.pollInterval)

	WithPollingMode(AutoPoll, 5*time.Minute)(o)
	assert.Equal(t, 5*time.Minute, o.pollInterval)
}

func TestClientOnReadyHookFires(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(boolFlagJSON))
	}))
	defer srv.Close()

	fired := make(chan struct{}, 1)
	client, err := New("sdk-key",
		WithPollingMode(ManualPoll, time.Minute),
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithHooks(&Hooks{OnReady: func() { fired <- struct{}{} }}),
	)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.WaitForReady(context.Background())
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("OnReady hook did not fire")
	}
}
