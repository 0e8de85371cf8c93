package floorgraph

import (
	"errors"
	"testing"
)

func TestBuilder_ConnectUsesSquaredLength(t *testing.T) {
	g, err := NewBuilder(0).
		AddNode(10, V(0, 0, 0)).
		AddNode(11, V(3, 0, 4)).
		Connect(10, 11, "staff").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	arc, ok := g.ArcBetween(11, 10)
	if !ok {
		t.Fatalf("arc 11-10 not found")
	}
	if arc.Cost != 25 {
		t.Fatalf("cost=%v want 25 (squared length)", arc.Cost)
	}
	if got := g.Neighbors(10); len(got) != 1 || got[0] != 11 {
		t.Fatalf("neighbors(10)=%v", got)
	}
	if got := g.Neighbors(11); len(got) != 1 || got[0] != 10 {
		t.Fatalf("neighbors(11)=%v", got)
	}
	if tags := g.ArcTags(11, 10); len(tags) != 1 || tags[0] != "staff" {
		t.Fatalf("tags=%v", tags)
	}
	n, ok := g.NodeBySource(11)
	if !ok || n.LocalID != 1 {
		t.Fatalf("NodeBySource(11)=%+v ok=%v", n, ok)
	}
}

func TestBuilder_OneWayNeighbor(t *testing.T) {
	g, err := NewBuilder(2).
		AddNode(0, V(0, 0, 0)).
		AddNode(1, V(1, 0, 0)).
		AddArc(0, 1, 1).
		AddNeighbor(0, 1).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Neighbors(1)) != 0 {
		t.Fatalf("adjacency must not be symmetrized: %v", g.Neighbors(1))
	}
}

func TestBuilder_Rejects(t *testing.T) {
	_, err := NewBuilder(0).AddNode(1, V(0, 0, 0)).AddNode(1, V(1, 0, 0)).Build()
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("duplicate node: err=%v", err)
	}
	_, err = NewBuilder(0).AddNode(1, V(0, 0, 0)).AddArc(1, 2, 1).Build()
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("unknown arc endpoint: err=%v", err)
	}
	_, err = NewBuilder(0).AddNode(1, V(0, 0, 0)).Connect(1, 9).Build()
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("unknown connect endpoint: err=%v", err)
	}
}

func TestFloors_UnknownFloorIsEmpty(t *testing.T) {
	g, _ := NewBuilder(1).AddNode(0, V(0, 0, 0)).Build()
	f := NewFloors(g)
	if !f.Has(1) || f.Floor(1) != g {
		t.Fatalf("floor 1 missing")
	}
	if got := f.Floor(7); !got.IsEmpty() || got.FloorID != 7 {
		t.Fatalf("unknown floor should be empty, got %+v", got)
	}
	if ids := f.IDs(); len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("IDs=%v", ids)
	}
}

func TestVec3_BitsDistinguishesSignedZero(t *testing.T) {
	var negZero float32 = 0
	negZero = -negZero
	a := V(0, 0, 0)
	b := V(negZero, 0, 0)
	if a != b {
		t.Fatalf("expected == to treat signed zeros as equal")
	}
	if a.Bits() == b.Bits() {
		t.Fatalf("Bits must differ for signed zeros")
	}
}
