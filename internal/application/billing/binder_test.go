package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, b *Binder) (dombilling.Service, error) {
	t.Helper()
	bound := make(chan dombilling.Service, 1)
	failed := make(chan error, 1)
	b.Connect(context.Background(),
		func(svc dombilling.Service) { bound <- svc },
		func(err error) { failed <- err },
	)
	select {
	case svc := <-bound:
		return svc, nil
	case err := <-failed:
		return nil, err
	case <-time.After(waitFor):
		t.Fatal("binder did not resolve")
		return nil, nil
	}
}

func TestBinderConnectAndDisconnect(t *testing.T) {
	events := startQueue(t, "events")
	svc := &fakeService{}
	platform := &fakePlatform{svc: svc}
	b := NewBinder(platform, events, nil)
	require.Equal(t, BinderIdle, b.State())

	got, err := connect(t, b)
	require.NoError(t, err)
	require.Same(t, svc, got)
	require.Equal(t, BinderBound, b.State())

	b.Disconnect()
	b.Disconnect()
	require.Equal(t, BinderUnbound, b.State())
	require.EqualValues(t, 1, platform.binds.Load())
	require.EqualValues(t, 1, platform.unbinds.Load())
}

func TestBinderFailures(t *testing.T) {
	tests := []struct {
		name       string
		platform   *fakePlatform
		wantUnbind int32
	}{
		{name: "refused", platform: &fakePlatform{refuse: true}},
		{name: "bind error", platform: &fakePlatform{bindErr: errors.New("no such service")}},
		{name: "platform panic", platform: &fakePlatform{panics: true}},
		{name: "null handle", platform: &fakePlatform{connNil: true}, wantUnbind: 1},
		{name: "binding died", platform: &fakePlatform{dies: true}, wantUnbind: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events := startQueue(t, "events")
			b := NewBinder(tc.platform, events, nil)

			_, err := connect(t, b)
			require.ErrorIs(t, err, dombilling.ErrBindServiceFailed)
			require.Equal(t, BinderBindFailed, b.State())

			b.Disconnect()
			require.Equal(t, tc.wantUnbind, tc.platform.unbinds.Load())
		})
	}
}

func TestBinderRejectsReuse(t *testing.T) {
	events := startQueue(t, "events")
	b := NewBinder(&fakePlatform{svc: &fakeService{}}, events, nil)
	_, err := connect(t, b)
	require.NoError(t, err)

	_, err = connect(t, b)
	require.ErrorIs(t, err, dombilling.ErrInvalidArgument)
}

func TestBinderDisconnectSuppressesPendingCallbacks(t *testing.T) {
	events := startQueue(t, "events")
	platform := &fakePlatform{svc: &fakeService{}}
	b := NewBinder(platform, events, nil)

	// Hold the event queue so the bound callback cannot run before Disconnect.
	gate := make(chan struct{})
	require.NoError(t, events.Post(func(context.Context) { <-gate }))

	fired := make(chan struct{}, 2)
	b.Connect(context.Background(),
		func(dombilling.Service) { fired <- struct{}{} },
		func(error) { fired <- struct{}{} },
	)
	b.Disconnect()
	close(gate)

	done := make(chan struct{})
	require.NoError(t, events.Post(func(context.Context) { close(done) }))
	<-done

	require.Empty(t, fired)
	require.EqualValues(t, 1, platform.unbinds.Load())
	require.Equal(t, BinderUnbound, b.State())
}
