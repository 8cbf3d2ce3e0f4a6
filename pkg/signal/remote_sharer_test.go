package signal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestRemoteWriteGivesUpOnStalledServer(t *testing.T) {
	saved := writeTimeout
	writeTimeout = 200 * time.Millisecond
	defer func() { writeTimeout = saved }()

	// The server accepts the socket and never reads from it.
	stop := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-stop
	}))
	defer ts.Close()
	defer close(stop)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, testRoom), nil)
	require.NoError(t, err)
	rs := NewRemoteSharer(conn)
	defer rs.Close()

	done := make(chan struct{})
	go func() {
		rs.SendToAllViewers(SignalMessage{Type: TypeOffer, SDP: strings.Repeat("x", 32<<20)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("write to a stalled server did not time out")
	}
}
