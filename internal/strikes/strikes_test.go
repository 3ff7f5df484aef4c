package strikes

import (
	"reflect"
	"testing"
	"time"

	"github.com/anonpick/anonpick/pkg/digest"
)

func TestAddAccumulatesInOrder(t *testing.T) {
	tr := New()
	c := digest.Sum([]byte("commitment"))

	tr.Add(c, "a")
	tr.Add(c, "b")
	rec := tr.Add(c, "c")

	if rec.StrikeCount != 3 {
		t.Errorf("expected 3 strikes, got %d", rec.StrikeCount)
	}
	if !reflect.DeepEqual(rec.Reasons, []string{"a", "b", "c"}) {
		t.Errorf("reasons should be in call order, got %v", rec.Reasons)
	}
	if rec.LastStrikeAt.IsZero() {
		t.Error("LastStrikeAt should be set")
	}
}

func TestCheckUnknownCommitment(t *testing.T) {
	tr := New()

	if _, ok := tr.Check(digest.Sum([]byte("never struck"))); ok {
		t.Error("unknown commitment should report no record")
	}
}

func TestCheckDoesNotMutate(t *testing.T) {
	tr := New()
	c := digest.Sum([]byte("commitment"))
	tr.Add(c, "a")

	rec, ok := tr.Check(c)
	if !ok {
		t.Fatal("expected a record")
	}
	rec.Reasons[0] = "tampered"

	again, _ := tr.Check(c)
	if again.Reasons[0] != "a" {
		t.Error("Check must return a copy, not internal state")
	}
}

func TestStrikesIsolatedPerCommitment(t *testing.T) {
	tr := New()

	tr.Add(digest.Sum([]byte("one")), "x")
	rec := tr.Add(digest.Sum([]byte("two")), "y")

	if rec.StrikeCount != 1 {
		t.Errorf("strikes must not leak across commitments, got count %d", rec.StrikeCount)
	}
}

func TestMarkBanned(t *testing.T) {
	tr := New()
	c := digest.Sum([]byte("commitment"))
	tr.Add(c, "abuse")

	at := time.Now()
	if !tr.MarkBanned(c, at) {
		t.Fatal("MarkBanned should succeed for a known commitment")
	}

	rec, _ := tr.Check(c)
	if rec.BannedAt == nil || !rec.BannedAt.Equal(at) {
		t.Errorf("BannedAt should be %v, got %v", at, rec.BannedAt)
	}

	// A second ban must not overwrite the first.
	if tr.MarkBanned(c, at.Add(time.Hour)) {
		t.Error("MarkBanned should not overwrite an existing ban")
	}
}

func TestMarkBannedUnknownCommitment(t *testing.T) {
	tr := New()

	if tr.MarkBanned(digest.Sum([]byte("ghost")), time.Now()) {
		t.Error("MarkBanned should fail for an unknown commitment")
	}
}
