package crdt_test

import (
	"bytes"
	"testing"

	"github.com/norfolkpine/collab-gateway/pkg/crdt"
)

func snapshotsEqual(a, b []crdt.Update) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func TestMergeIsIdempotent(t *testing.T) {
	s := crdt.NewUpdateLog().NewState()

	if applied := s.Merge(crdt.Update("u1")); !applied {
		t.Fatal("first merge of u1 should apply")
	}
	if applied := s.Merge(crdt.Update("u1")); applied {
		t.Error("second merge of u1 should be a no-op")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 distinct update, got %d", s.Len())
	}
}

func TestMergeOrderDoesNotMatter(t *testing.T) {
	engine := crdt.NewUpdateLog()
	u1 := crdt.Update("insert:hello")
	u2 := crdt.Update("insert:world")

	forward := engine.NewState()
	forward.Merge(u1)
	forward.Merge(u2)

	reverse := engine.NewState()
	reverse.Merge(u2)
	reverse.Merge(u1)

	if !snapshotsEqual(forward.Snapshot(), reverse.Snapshot()) {
		t.Error("states diverged: [u1,u2] and [u2,u1] should converge")
	}
}

func TestDuplicateDeliveryConverges(t *testing.T) {
	engine := crdt.NewUpdateLog()
	u1 := crdt.Update("op-a")
	u2 := crdt.Update("op-b")

	once := engine.NewState()
	once.Merge(u1)
	once.Merge(u2)

	twice := engine.NewState()
	twice.Merge(u1)
	twice.Merge(u1)
	twice.Merge(u2)
	twice.Merge(u2)
	twice.Merge(u1)

	if !snapshotsEqual(once.Snapshot(), twice.Snapshot()) {
		t.Error("duplicate deliveries changed the converged state")
	}
	if once.Len() != twice.Len() {
		t.Errorf("expected equal lengths, got %d and %d", once.Len(), twice.Len())
	}
}

func TestMergeCopiesCallerBuffer(t *testing.T) {
	s := crdt.NewUpdateLog().NewState()
	buf := []byte("mutable")
	s.Merge(buf)
	buf[0] = 'X'

	snap := s.Snapshot()
	if len(snap) != 1 || !bytes.Equal(snap[0], []byte("mutable")) {
		t.Error("merged state should not alias the caller's buffer")
	}
}

func TestSnapshotIsDeterministic(t *testing.T) {
	engine := crdt.NewUpdateLog()
	updates := []crdt.Update{
		crdt.Update("c"), crdt.Update("a"), crdt.Update("b"),
	}

	s1 := engine.NewState()
	for _, u := range updates {
		s1.Merge(u)
	}
	s2 := engine.NewState()
	for i := len(updates) - 1; i >= 0; i-- {
		s2.Merge(updates[i])
	}

	snap1, snap2 := s1.Snapshot(), s2.Snapshot()
	if !snapshotsEqual(snap1, snap2) {
		t.Fatal("snapshots of converged states differ")
	}
	for i := 1; i < len(snap1); i++ {
		if bytes.Compare(snap1[i-1], snap1[i]) >= 0 {
			t.Error("snapshot is not in stable sorted order")
		}
	}
}
