package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndQueryScans(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := s.RecordScan(ctx, &ScanEvent{
			EPC:    fmt.Sprintf("E200%02d", i),
			GateID: "gate-1",
			At:     base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordScan: %v", err)
		}
	}

	scans, err := s.RecentScans(ctx, ScanFilter{GateID: "gate-1", Limit: 3})
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	if len(scans) != 3 {
		t.Fatalf("len(scans) = %d, want 3", len(scans))
	}
	if scans[0].EPC != "E20004" {
		t.Errorf("newest EPC = %q, want %q", scans[0].EPC, "E20004")
	}
	if scans[0].ID == "" {
		t.Error("RecordScan did not assign an ID")
	}
}

func TestScanFilterByEPCAndSince(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.RecordScan(ctx, &ScanEvent{EPC: "E200AA", At: base})
	s.RecordScan(ctx, &ScanEvent{EPC: "E200AA", At: base.Add(time.Hour)})
	s.RecordScan(ctx, &ScanEvent{EPC: "E200BB", At: base.Add(time.Hour)})

	scans, err := s.RecentScans(ctx, ScanFilter{EPC: "E200AA", Since: base.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	if len(scans) != 1 {
		t.Fatalf("len(scans) = %d, want 1", len(scans))
	}
}

func TestAlertsAckAndFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := &Alert{EPC: "E200FF", GateID: "exit-2", Severity: "high"}
	if err := s.RecordAlert(ctx, a); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	s.RecordAlert(ctx, &Alert{EPC: "E200EE", GateID: "exit-1"})

	unacked, err := s.RecentAlerts(ctx, AlertFilter{Unacked: true})
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(unacked) != 2 {
		t.Fatalf("len(unacked) = %d, want 2", len(unacked))
	}

	if err := s.AckAlert(ctx, a.ID); err != nil {
		t.Fatalf("AckAlert: %v", err)
	}

	unacked, err = s.RecentAlerts(ctx, AlertFilter{Unacked: true})
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(unacked) != 1 {
		t.Errorf("len(unacked) = %d, want 1", len(unacked))
	}
}

func TestAckAlertUnknownID(t *testing.T) {
	s := testStore(t)
	err := s.AckAlert(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AckAlert = %v, want ErrNotFound", err)
	}
}

func TestLinkAndResolveTag(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	link := &TagLink{EPC: "E2001234", Barcode: "4006381333931", Product: "Stainless bottle"}
	if err := s.LinkTag(ctx, link); err != nil {
		t.Fatalf("LinkTag: %v", err)
	}

	got, err := s.ResolveTag(ctx, "E2001234")
	if err != nil {
		t.Fatalf("ResolveTag: %v", err)
	}
	if got.Barcode != "4006381333931" {
		t.Errorf("Barcode = %q, want %q", got.Barcode, "4006381333931")
	}

	// relinking the same EPC replaces the binding
	if err := s.LinkTag(ctx, &TagLink{EPC: "E2001234", Barcode: "9999999999999"}); err != nil {
		t.Fatalf("LinkTag relink: %v", err)
	}
	got, err = s.ResolveTag(ctx, "E2001234")
	if err != nil {
		t.Fatalf("ResolveTag: %v", err)
	}
	if got.Barcode != "9999999999999" {
		t.Errorf("Barcode after relink = %q, want %q", got.Barcode, "9999999999999")
	}
}

func TestResolveTagNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.ResolveTag(context.Background(), "E200DEAD")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ResolveTag = %v, want ErrNotFound", err)
	}
}

func TestPruneBefore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()

	s.RecordScan(ctx, &ScanEvent{EPC: "E200AA", At: old})
	s.RecordScan(ctx, &ScanEvent{EPC: "E200BB", At: fresh})

	oldAcked := &Alert{EPC: "E200AA", At: old}
	s.RecordAlert(ctx, oldAcked)
	s.AckAlert(ctx, oldAcked.ID)
	s.RecordAlert(ctx, &Alert{EPC: "E200CC", At: old}) // unacked, must survive

	n, err := s.PruneBefore(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}

	scans, _ := s.RecentScans(ctx, ScanFilter{})
	if len(scans) != 1 {
		t.Errorf("len(scans) = %d, want 1", len(scans))
	}
	alerts, _ := s.RecentAlerts(ctx, AlertFilter{})
	if len(alerts) != 1 {
		t.Errorf("len(alerts) = %d, want 1", len(alerts))
	}
}
