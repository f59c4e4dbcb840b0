package chunk

import (
	"testing"

	"github.com/google/uuid"
)

func TestRecordID_Deterministic(t *testing.T) {
	a := RecordID("C042AAA", "1723200000.000100", 0)
	b := RecordID("C042AAA", "1723200000.000100", 0)
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
}

func TestRecordID_DistinguishesInputs(t *testing.T) {
	base := RecordID("C042AAA", "1723200000.000100", 0)

	if got := RecordID("C042BBB", "1723200000.000100", 0); got == base {
		t.Fatal("different source produced same id")
	}
	if got := RecordID("C042AAA", "1723200000.000200", 0); got == base {
		t.Fatal("different timestamp produced same id")
	}
	if got := RecordID("C042AAA", "1723200000.000100", 1); got == base {
		t.Fatal("different ordinal produced same id")
	}
}

func TestRecordID_ParsesAsV5(t *testing.T) {
	u, err := uuid.Parse(RecordID("C042AAA", "1723200000.000100", 3))
	if err != nil {
		t.Fatalf("record id is not a valid uuid: %v", err)
	}
	if u.Version() != 5 {
		t.Fatalf("record id version = %d, want 5", u.Version())
	}
}

func TestRecordID_NoDelimiterCollision(t *testing.T) {
	// the delimiter keeps (ab, c) and (a, bc) style inputs apart
	if RecordID("C1", "23.4", 5) == RecordID("C12", "3.4", 5) {
		t.Fatal("delimiter failed to separate source and timestamp")
	}
}
