package action

import (
	"context"
	"path/filepath"
	"testing"

	"clinivoice-server-go/internal/platform/storage"
	platformtesting "clinivoice-server-go/internal/platform/testing"
)

func TestHighRisk(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    bool
	}{
		{"lab order", Payload{Kind: KindLabOrder}, true},
		{"refill", Payload{Kind: KindMedicationRefill}, true},
		{"note update", Payload{Kind: KindNoteUpdate}, false},
		{"navigation", Payload{Kind: KindNavigation}, false},
		{"controlled note", Payload{Kind: KindNoteUpdate, Args: map[string]string{"controlled_substance": "true"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.payload.HighRisk(); got != tt.want {
				t.Errorf("HighRisk() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderLogExecutorPersists(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "orders.db"))
	platformtesting.AssertNoError(t, err, "open database")
	defer db.Close()

	exec, err := NewOrderLogExecutor(db, "s1", platformtesting.SetupTestLogger(t))
	platformtesting.AssertNoError(t, err, "create executor")

	ctx := context.Background()
	result, err := exec.Execute(ctx, Payload{
		Kind:    KindLabOrder,
		Summary: "order CBC stat",
		Args:    map[string]string{"test_names": "CBC", "priority": "stat"},
	})
	platformtesting.AssertNoError(t, err, "execute order")
	if !result.OK {
		t.Fatalf("result = %+v", result)
	}

	recs, err := exec.Recent(ctx, 10)
	platformtesting.AssertNoError(t, err, "query order log")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Kind != KindLabOrder || recs[0].SessionID != "s1" {
		t.Errorf("record = %+v", recs[0])
	}
}
