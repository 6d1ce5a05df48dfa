package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/guardian/internal/relay"
	"github.com/HerbHall/guardian/internal/server"
	"github.com/HerbHall/guardian/internal/testutil"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

type wireMessage struct {
	Event    string          `json:"event"`
	DeviceID string          `json:"device_id"`
	Data     json.RawMessage `json:"data"`
}

// newTestServer serves the handler through the full server middleware
// chain so the upgrade goes through the wrapped ResponseWriter.
func newTestServer(t *testing.T) (*testutil.Relay, *httptest.Server) {
	t.Helper()
	rl := testutil.NewRelay(t)
	h := NewHandler(rl.Sessions, time.Second, zap.NewNop())
	srv := server.New(server.Config{RateLimitRPS: 1000, RateLimitBurst: 1000}, zap.NewNop(), nil, h)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return rl, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var m wireMessage
	if err := wsjson.Read(ctx, conn, &m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func join(t *testing.T, conn *websocket.Conn, deviceID string) {
	t.Helper()
	send(t, conn, map[string]string{"type": FrameJoinDevice, "device_id": deviceID})
	ack := receive(t, conn)
	if ack.Event != relay.EventJoined || ack.DeviceID != deviceID {
		t.Fatalf("ack = %+v, want joined %s", ack, deviceID)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStream_JoinThenReceiveLocation(t *testing.T) {
	rl, ts := newTestServer(t)
	conn := dial(t, ts)
	join(t, conn, "STICK_001")

	if _, err := rl.Engine.IngestLocation(context.Background(),
		testutil.NewLocationReport("STICK_001", testutil.At(12.9, 77.6))); err != nil {
		t.Fatalf("IngestLocation: %v", err)
	}

	m := receive(t, conn)
	if m.Event != relay.EventLocationUpdate || m.DeviceID != "STICK_001" {
		t.Fatalf("message = %+v", m)
	}
	var loc relay.LocationUpdate
	if err := json.Unmarshal(m.Data, &loc); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if loc.Lat != 12.9 || loc.Lng != 77.6 || loc.Timestamp.IsZero() {
		t.Errorf("location = %+v", loc)
	}
}

func TestStream_LegacyDeviceIdField(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, map[string]string{"type": FrameJoinDevice, "deviceId": "STICK_002"})
	ack := receive(t, conn)
	if ack.Event != relay.EventJoined || ack.DeviceID != "STICK_002" {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestStream_OnlyJoinedRoomsReceive(t *testing.T) {
	rl, ts := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)
	join(t, a, "STICK_A")
	join(t, b, "STICK_B")

	ctx := context.Background()
	if _, err := rl.Engine.IngestAlert(ctx, testutil.NewAlertReport("STICK_A", testutil.WithKind("SOS"))); err != nil {
		t.Fatalf("IngestAlert: %v", err)
	}
	if _, err := rl.Engine.IngestStatus(ctx, testutil.NewStatusReport("STICK_B", 80, 4)); err != nil {
		t.Fatalf("IngestStatus: %v", err)
	}

	if m := receive(t, a); m.Event != relay.EventEmergencyAlert {
		t.Errorf("a got %q, want %q", m.Event, relay.EventEmergencyAlert)
	}
	m := receive(t, b)
	if m.Event != relay.EventStatusUpdate {
		t.Fatalf("b got %q, want %q", m.Event, relay.EventStatusUpdate)
	}
	var st relay.StatusUpdate
	if err := json.Unmarshal(m.Data, &st); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if st.Battery != 80 || st.Signal != 4 || st.Status != "online" {
		t.Errorf("status = %+v", st)
	}
}

func TestStream_ErrorReplies(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"missing device id", `{"type":"join_device"}`},
		{"unknown type", `{"type":"leave_device","device_id":"STICK_001"}`},
		{"malformed json", `{"type":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ts := newTestServer(t)
			conn := dial(t, ts)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := conn.Write(ctx, websocket.MessageText, []byte(tc.frame)); err != nil {
				t.Fatalf("write: %v", err)
			}

			m := receive(t, conn)
			if m.Event != relay.EventError {
				t.Fatalf("event = %q, want %q", m.Event, relay.EventError)
			}
			var data relay.ErrorData
			if err := json.Unmarshal(m.Data, &data); err != nil || data.Error == "" {
				t.Errorf("error data = %s (%v)", m.Data, err)
			}

			// The connection survives a rejected frame.
			join(t, conn, "STICK_001")
		})
	}
}

func TestStream_DisconnectDropsSubscriptions(t *testing.T) {
	rl, ts := newTestServer(t)
	conn := dial(t, ts)
	join(t, conn, "STICK_001")
	join(t, conn, "STICK_002")

	if got := rl.Directory.Count(); got != 2 {
		t.Fatalf("subscriptions = %d, want 2", got)
	}

	conn.Close(websocket.StatusNormalClosure, "bye")

	waitFor(t, "session teardown", func() bool {
		return rl.Sessions.Count() == 0 && rl.Directory.Count() == 0
	})

	// Ingest after the client left still succeeds.
	if _, err := rl.Engine.IngestLocation(context.Background(), testutil.NewLocationReport("STICK_001")); err != nil {
		t.Errorf("IngestLocation after disconnect: %v", err)
	}
}

func TestStream_CloseAllClosesConnection(t *testing.T) {
	rl, ts := newTestServer(t)
	conn := dial(t, ts)
	join(t, conn, "STICK_001")

	rl.Sessions.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want %v", got, err, websocket.StatusGoingAway)
	}
}

func TestNewHandler_DefaultWriteTimeout(t *testing.T) {
	h := NewHandler(nil, 0, zap.NewNop())
	if h.writeTimeout != DefaultWriteTimeout {
		t.Errorf("writeTimeout = %v, want %v", h.writeTimeout, DefaultWriteTimeout)
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/api/ws", http.NoBody))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/ws = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}
