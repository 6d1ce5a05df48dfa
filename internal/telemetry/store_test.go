package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/guardian/internal/store"
	"github.com/HerbHall/guardian/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

// fixedClock makes the store stamp records with t, t+1s, t+2s, ...
func fixedClock(s *Store, start time.Time) {
	var mu sync.Mutex
	next := start
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := next
		next = next.Add(time.Second)
		return cur
	}
}

func f64(v float64) *float64 { return &v }

func TestRecordLocation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fixedClock(s, start)

	sample, err := s.RecordLocation(ctx, models.LocationReport{DeviceID: "STICK_001", Lat: f64(12.9), Lng: f64(77.6)})
	if err != nil {
		t.Fatalf("RecordLocation: %v", err)
	}
	if sample.ID == 0 {
		t.Error("expected assigned id")
	}
	if !sample.Timestamp.Equal(start) {
		t.Errorf("Timestamp = %v, want %v", sample.Timestamp, start)
	}

	got, err := s.ListLocations(ctx, "STICK_001", 0)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(got) != 1 || got[0].Lat != 12.9 || got[0].Lng != 77.6 {
		t.Fatalf("ListLocations = %+v", got)
	}
	if !got[0].Timestamp.Equal(start) {
		t.Errorf("stored timestamp = %v, want %v", got[0].Timestamp, start)
	}
}

func TestRecordLocation_Validation(t *testing.T) {
	s := testStore(t)
	tests := []struct {
		name   string
		report models.LocationReport
	}{
		{"missing device", models.LocationReport{Lat: f64(1), Lng: f64(1)}},
		{"missing lat", models.LocationReport{DeviceID: "d", Lng: f64(1)}},
		{"lat out of range", models.LocationReport{DeviceID: "d", Lat: f64(-95), Lng: f64(1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.RecordLocation(context.Background(), tc.report)
			if !errors.Is(err, models.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	got, err := s.ListLocations(context.Background(), "d", 10)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("invalid reports were stored: %+v", got)
	}
}

func TestListLocations_OrderAndLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	fixedClock(s, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		if _, err := s.RecordLocation(ctx, models.LocationReport{DeviceID: "d", Lat: f64(float64(i)), Lng: f64(0)}); err != nil {
			t.Fatalf("RecordLocation %d: %v", i, err)
		}
	}
	if _, err := s.RecordLocation(ctx, models.LocationReport{DeviceID: "other", Lat: f64(50), Lng: f64(0)}); err != nil {
		t.Fatalf("RecordLocation other: %v", err)
	}

	got, err := s.ListLocations(ctx, "d", 3)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []float64{4, 3, 2} {
		if got[i].Lat != want {
			t.Errorf("got[%d].Lat = %v, want %v", i, got[i].Lat, want)
		}
	}
}

func TestRecordAlert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.RecordAlert(ctx, models.AlertReport{
		DeviceID: "STICK_001",
		Kind:     "SOS",
		Lat:      f64(12.9),
		Lng:      f64(77.6),
		ImageURL: "https://img.example.com/1.jpg",
	})
	if err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	if a.ID == "" || a.Resolved {
		t.Fatalf("unexpected alert %+v", a)
	}

	got, err := s.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Kind != "SOS" || got.Lat == nil || *got.Lat != 12.9 || got.ImageURL != a.ImageURL {
		t.Errorf("stored alert = %+v", got)
	}
	if got.ResolvedAt != nil {
		t.Error("new alert should have no resolved_at")
	}
}

func TestRecordAlert_WithoutCoordinates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.RecordAlert(ctx, models.AlertReport{DeviceID: "d", Kind: "FALL"})
	if err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	got, err := s.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Lat != nil || got.Lng != nil {
		t.Errorf("coordinates = %v/%v, want nil", got.Lat, got.Lng)
	}
}

func TestRecordAlert_Validation(t *testing.T) {
	s := testStore(t)
	_, err := s.RecordAlert(context.Background(), models.AlertReport{DeviceID: "d"})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestResolveAlert_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fixedClock(s, start)

	a, err := s.RecordAlert(ctx, models.AlertReport{DeviceID: "d", Kind: "SOS"})
	if err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}

	first, err := s.ResolveAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	if !first.Resolved || first.ResolvedAt == nil {
		t.Fatalf("first resolve = %+v", first)
	}

	second, err := s.ResolveAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("second ResolveAlert: %v", err)
	}
	if !second.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Errorf("resolved_at moved from %v to %v", first.ResolvedAt, second.ResolvedAt)
	}
}

func TestResolveAlert_Unknown(t *testing.T) {
	s := testStore(t)
	_, err := s.ResolveAlert(context.Background(), "no-such-alert")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListAlerts_MostRecentFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Identical timestamps: insertion order breaks the tie.
	same := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return same }

	var ids []string
	for _, kind := range []string{"SOS", "FALL", "LOW_BATTERY"} {
		a, err := s.RecordAlert(ctx, models.AlertReport{DeviceID: "d", Kind: kind})
		if err != nil {
			t.Fatalf("RecordAlert: %v", err)
		}
		ids = append(ids, a.ID)
	}

	got, err := s.ListAlerts(ctx, "d")
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if got[i].ID != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, want)
		}
	}

	empty, err := s.ListAlerts(ctx, "unknown")
	if err != nil {
		t.Fatalf("ListAlerts unknown: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListAlerts(unknown) = %v, want empty slice", empty)
	}
}

func TestListAlerts_OrdersByCreatedAt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	stamps := []time.Time{
		base.Add(1500 * time.Millisecond),
		base,
		base.Add(250 * time.Millisecond),
		base.Add(2 * time.Second),
		base.Add(250*time.Millisecond + time.Microsecond),
	}
	var mu sync.Mutex
	next := 0
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := stamps[next]
		next++
		return cur
	}

	ids := make([]string, len(stamps))
	for i := range stamps {
		a, err := s.RecordAlert(ctx, models.AlertReport{DeviceID: "d", Kind: "SOS"})
		if err != nil {
			t.Fatalf("RecordAlert: %v", err)
		}
		ids[i] = a.ID
	}

	got, err := s.ListAlerts(ctx, "d")
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	want := []string{ids[3], ids[0], ids[4], ids[2], ids[1]}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("got[%d] = %s (%v), want %s", i, got[i].ID, got[i].Timestamp, want[i])
		}
	}
	if !got[0].Timestamp.Equal(stamps[3]) {
		t.Errorf("newest Timestamp = %v, want %v", got[0].Timestamp, stamps[3])
	}
}

func TestRecord_PersistenceFailure(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	s, err := NewStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	db.Close()

	_, err = s.RecordLocation(context.Background(), models.LocationReport{DeviceID: "d", Lat: f64(1), Lng: f64(1)})
	if !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}
