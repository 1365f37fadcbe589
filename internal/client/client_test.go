package client

import (
	"context"
	stderrors "errors"
	"os"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wagiedev/lspipe/internal/config"
	"github.com/wagiedev/lspipe/internal/errors"
	"github.com/wagiedev/lspipe/internal/testutil"
	"github.com/wagiedev/lspipe/internal/transport"
)

func TestMain(m *testing.M) {
	testutil.RunFakeServerIfRequested()
	os.Exit(m.Run())
}

func startFake(t *testing.T, mode string, options *config.Options) *Client {
	t.Helper()

	command, env := testutil.FakeServer(t, mode)

	if options == nil {
		options = &config.Options{}
	}

	options.Env = env

	c := New()
	require.NoError(t, c.Start(context.Background(), command, nil, options))

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestClient_Lifecycle(t *testing.T) {
	defer leaktest.Check(t)()

	c := startFake(t, testutil.ModeEcho, &config.Options{
		Settings: map[string]any{"fake.level": "debug"},
	})

	ctx := context.Background()

	result, err := c.Initialize(ctx, map[string]any{"rootUri": "file:///work"})
	require.NoError(t, err)
	require.Equal(t, "file:///work", gjson.GetBytes(result, "rootUri").String())
	require.JSONEq(t, string(result), string(c.InitializeResult()))

	pong, err := c.Call(ctx, "ping", nil, 5*time.Second)
	require.NoError(t, err)
	require.JSONEq(t, `"pong"`, string(pong))

	require.NoError(t, c.Notify(ctx, "textDocument/didOpen", map[string]any{"uri": "file:///work/a.go"}))
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Close())

	outcomes := c.Outcomes()
	require.Len(t, outcomes, 3)

	for _, outcome := range outcomes {
		require.NoError(t, outcome.Err, outcome.Worker)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, err := c.Initialize(ctx, nil)
	require.ErrorIs(t, err, errors.ErrClientNotConnected)

	_, err = c.Call(ctx, "ping", nil, time.Second)
	require.ErrorIs(t, err, errors.ErrClientNotConnected)

	require.ErrorIs(t, c.Notify(ctx, "x", nil), errors.ErrClientNotConnected)
	require.ErrorIs(t, c.Shutdown(ctx), errors.ErrClientNotConnected)
	require.ErrorIs(t, c.RegisterHandler("x", nil), errors.ErrClientNotConnected)

	_, err = c.ApplySettings(ctx, nil)
	require.ErrorIs(t, err, errors.ErrClientNotConnected)

	for _, err := range c.ReceiveNotifications(ctx) {
		require.ErrorIs(t, err, errors.ErrClientNotConnected)
	}

	require.Nil(t, c.InitializeResult())
	require.Nil(t, c.Outcomes())
	require.NoError(t, c.Close())
}

func TestClient_StartTwice(t *testing.T) {
	c := startFake(t, testutil.ModeEcho, nil)

	command, env := testutil.FakeServer(t, testutil.ModeEcho)

	err := c.Start(context.Background(), command, nil, &config.Options{Env: env})
	require.ErrorIs(t, err, errors.ErrClientAlreadyConnected)
}

func TestClient_StartAfterClose(t *testing.T) {
	c := startFake(t, testutil.ModeEcho, nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	command, env := testutil.FakeServer(t, testutil.ModeEcho)

	err := c.Start(context.Background(), command, nil, &config.Options{Env: env})
	require.ErrorIs(t, err, errors.ErrClientClosed)
}

func TestClient_StartServerNotFound(t *testing.T) {
	c := New()

	err := c.Start(context.Background(), "lspipe-no-such-server", nil, &config.Options{SearchPaths: []string{t.TempDir()}})

	_, ok := stderrors.AsType[*errors.ServerNotFoundError](err)
	require.True(t, ok, "expected *errors.ServerNotFoundError, got %v", err)
}

func TestClient_ReceiveNotifications(t *testing.T) {
	c := startFake(t, testutil.ModeNotify, nil)

	var steps []int64

	for note, err := range c.ReceiveNotifications(context.Background()) {
		require.NoError(t, err)
		require.Equal(t, "progress", note.Method)

		steps = append(steps, gjson.GetBytes(note.Params, "step").Int())

		if len(steps) == 3 {
			break
		}
	}

	require.Equal(t, []int64{1, 2, 3}, steps)
	require.NoError(t, c.Close())

	// A closed client has nothing left to deliver.
	for _, err := range c.ReceiveNotifications(context.Background()) {
		require.ErrorIs(t, err, errors.ErrClientNotConnected)
	}
}

func TestClient_ReceiveNotificationsEndsOnExit(t *testing.T) {
	c := startFake(t, testutil.ModeSilent, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, err := range c.ReceiveNotifications(ctx) {
		require.NoError(t, err)
	}

	require.NoError(t, ctx.Err())
}

func TestClient_ReceiveNotificationsReportsBrokenStream(t *testing.T) {
	c := startFake(t, testutil.ModeGarbage, nil)

	var last error

	for _, err := range c.ReceiveNotifications(context.Background()) {
		last = err
	}

	require.ErrorIs(t, last, errors.ErrTransportClosed)

	err := c.Close()
	require.ErrorIs(t, err, &errors.FramingError{Kind: errors.MalformedHeader})
}

func TestClient_CloseKillsStalledServer(t *testing.T) {
	c := startFake(t, testutil.ModeStall, nil)
	c.closeTimeout = 100 * time.Millisecond

	done := make(chan error, 1)

	go func() { done <- c.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not kill the stalled server")
	}

	for _, outcome := range c.Outcomes() {
		if outcome.Worker == transport.WorkerReader {
			require.NoError(t, outcome.Err)
		}
	}
}
