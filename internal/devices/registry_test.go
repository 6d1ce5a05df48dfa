package devices

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HerbHall/guardian/internal/store"
	"github.com/HerbHall/guardian/pkg/models"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r, err := NewRegistry(context.Background(), db)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func report(id string, battery, signal int, at time.Time) models.StatusReport {
	return models.StatusReport{DeviceID: id, Battery: &battery, Signal: &signal, ObservedAt: &at}
}

func TestUpdateStatus_RegistersUnknownDevice(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	st, err := r.UpdateStatus(ctx, report("STICK_001", 87, 3, at))
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if st.Status != models.DeviceStateOnline || st.Battery != 87 || st.Signal != 3 || st.Stale {
		t.Errorf("status = %+v", st)
	}

	d, err := r.Get(ctx, "STICK_001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Status != models.DeviceStateOnline || d.Battery != 87 {
		t.Errorf("device = %+v", d)
	}
	if d.LastSeen == nil || !d.LastSeen.Equal(at) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, at)
	}
}

func TestUpdateStatus_StaleHeartbeatKeepsNewerReadings(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Minute)

	if _, err := r.UpdateStatus(ctx, report("d", 80, 4, t1)); err != nil {
		t.Fatalf("UpdateStatus t1: %v", err)
	}
	st, err := r.UpdateStatus(ctx, report("d", 20, 1, t0))
	if err != nil {
		t.Fatalf("UpdateStatus t0: %v", err)
	}
	if !st.Stale {
		t.Error("expected stale heartbeat to be flagged")
	}
	if st.Battery != 80 || st.Signal != 4 || !st.LastSeen.Equal(t1) {
		t.Errorf("stale result = %+v, want stored readings", st)
	}

	d, err := r.Get(ctx, "d")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Battery != 80 || !d.LastSeen.Equal(t1) {
		t.Errorf("device regressed: %+v", d)
	}
}

func TestUpdateStatus_SameTimestampOverwrites(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, err := r.UpdateStatus(ctx, report("d", 50, 2, at)); err != nil {
		t.Fatalf("first: %v", err)
	}
	st, err := r.UpdateStatus(ctx, report("d", 49, 3, at))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if st.Stale || st.Battery != 49 {
		t.Errorf("status = %+v, want overwrite at equal time", st)
	}
}

func TestUpdateStatus_LastSeenMonotonic(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	offsets := []time.Duration{0, 3 * time.Second, time.Second, 5 * time.Second, 2 * time.Second}
	var latest time.Time
	for _, off := range offsets {
		at := base.Add(off)
		if at.After(latest) {
			latest = at
		}
		if _, err := r.UpdateStatus(ctx, report("d", 50, 2, at)); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		d, err := r.Get(ctx, "d")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !d.LastSeen.Equal(latest) {
			t.Fatalf("LastSeen = %v, want %v", d.LastSeen, latest)
		}
	}
}

func TestUpdateStatus_Validation(t *testing.T) {
	r := testRegistry(t)
	at := time.Now()
	tests := []struct {
		name string
		rep  models.StatusReport
	}{
		{"battery above range", report("d", 150, 3, at)},
		{"missing device", report("", 50, 3, at)},
		{"missing signal", models.StatusReport{DeviceID: "d", Battery: new(int)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.UpdateStatus(context.Background(), tc.rep)
			if !errors.Is(err, models.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
	if _, err := r.Get(context.Background(), "d"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("invalid heartbeat registered a device: %v", err)
	}
}

func TestGet_Unknown(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Get(context.Background(), "ghost")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLinkUser(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	if err := r.LinkUser(ctx, "STICK_002", "user-1"); err != nil {
		t.Fatalf("LinkUser: %v", err)
	}
	d, err := r.Get(ctx, "STICK_002")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.UserID != "user-1" || d.Status != models.DeviceStateOffline || d.LastSeen != nil {
		t.Errorf("linked device = %+v", d)
	}

	// A later heartbeat keeps the link.
	if _, err := r.UpdateStatus(ctx, report("STICK_002", 90, 4, time.Now())); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	d, err = r.Get(ctx, "STICK_002")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.UserID != "user-1" {
		t.Errorf("UserID = %q after heartbeat", d.UserID)
	}
}

func TestHandleGetDevice(t *testing.T) {
	r := testRegistry(t)
	mux := http.NewServeMux()
	NewHandler(r, zap.NewNop()).RegisterRoutes(mux)
	if _, err := r.UpdateStatus(context.Background(), report("STICK_001", 70, 2, time.Now())); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/devices/STICK_001", http.StatusOK},
		{"/api/devices/ghost", http.StatusNotFound},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.want {
			t.Errorf("GET %s = %d, want %d", tc.path, rec.Code, tc.want)
		}
	}
}
