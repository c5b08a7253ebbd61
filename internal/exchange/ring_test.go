package exchange

import (
	"testing"
	"time"
)

func TestRing_Circular(t *testing.T) {
	r := NewRing(3)
	r.Add(Entry{ID: "1"})
	r.Add(Entry{ID: "2"})
	r.Add(Entry{ID: "3"})
	if got := len(r.All()); got != 3 {
		t.Fatalf("len(All()) = %d, want 3", got)
	}

	r.Add(Entry{ID: "4"})
	all := r.All()
	if len(all) != 3 || all[0].ID != "2" || all[2].ID != "4" {
		t.Fatalf("circular order wrong: %+v", all)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestRing_Get(t *testing.T) {
	r := NewRing(2)
	r.Add(Entry{ID: "a", Status: 200})
	r.Add(Entry{ID: "b", Status: 404})

	e, ok := r.Get("b")
	if !ok || e.Status != 404 {
		t.Errorf("Get(b) = %+v, %v", e, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) found an entry")
	}
	if _, ok := NewRing(2).Get(""); ok {
		t.Error("Get(\"\") matched an empty slot")
	}
}

func TestRing_Subscribe(t *testing.T) {
	r := NewRing(4)
	ch, cancel := r.Subscribe()

	r.Add(Entry{ID: "x"})

	select {
	case e := <-ch:
		if e.ID != "x" {
			t.Errorf("received %q, want %q", e.ID, "x")
		}
	case <-time.After(time.Second):
		t.Fatal("no entry received")
	}

	cancel()
	cancel() // second cancel is a no-op
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Adding after cancel must not panic on the closed channel.
	r.Add(Entry{ID: "y"})
}
