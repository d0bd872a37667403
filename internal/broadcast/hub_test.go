package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/wabothub/internal/session"
)

func TestHubQRTenantScoping(t *testing.T) {
	hub := NewHub()

	var acme, globex []session.QRRecord
	cancelAcme, err := hub.SubscribeQR("acme", func(rec session.QRRecord) {
		acme = append(acme, rec)
	})
	require.NoError(t, err)
	defer cancelAcme()

	cancelGlobex, err := hub.SubscribeQR("globex", func(rec session.QRRecord) {
		globex = append(globex, rec)
	})
	require.NoError(t, err)
	defer cancelGlobex()

	hub.PublishQR("acme", session.QRRecord{Code: "a1", IssuedAt: time.Now()})
	hub.PublishQR("acme", session.QRRecord{Code: "a2", IssuedAt: time.Now()})
	hub.PublishQR("globex", session.QRRecord{Code: "g1", IssuedAt: time.Now()})

	require.Len(t, acme, 2)
	assert.Equal(t, "a1", acme[0].Code)
	assert.Equal(t, "a2", acme[1].Code)
	require.Len(t, globex, 1)
	assert.Equal(t, "g1", globex[0].Code)
}

func TestHubStatusTenantScoping(t *testing.T) {
	hub := NewHub()

	var got []session.StatusEvent
	cancel, err := hub.SubscribeStatus("acme", func(ev session.StatusEvent) {
		got = append(got, ev)
	})
	require.NoError(t, err)
	defer cancel()

	hub.PublishStatus(session.StatusEvent{TenantKey: "acme", State: session.StateReady, At: time.Now()})
	hub.PublishStatus(session.StatusEvent{TenantKey: "globex", State: session.StateDestroyed, At: time.Now()})

	require.Len(t, got, 1)
	assert.Equal(t, session.StateReady, got[0].State)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()

	count := 0
	cancel, err := hub.SubscribeQR("acme", func(rec session.QRRecord) {
		count++
	})
	require.NoError(t, err)

	hub.PublishQR("acme", session.QRRecord{Code: "a1"})
	cancel()
	hub.PublishQR("acme", session.QRRecord{Code: "a2"})

	assert.Equal(t, 1, count)
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.PublishQR("nobody", session.QRRecord{Code: "x"})
		hub.PublishStatus(session.StatusEvent{TenantKey: "nobody"})
	})
}
