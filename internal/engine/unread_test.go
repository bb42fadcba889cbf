package engine

import "testing"

func TestUnreadIncrementAndClear(t *testing.T) {
	u := newUnreadCounter()

	if u.increment("c1") != 1 || u.increment("c1") != 2 {
		t.Error("increment did not count up")
	}
	u.clear("c1")
	if u.get("c1") != 0 {
		t.Error("clear did not reset to zero")
	}
}

func TestUnreadMergeTakesMax(t *testing.T) {
	u := newUnreadCounter()
	u.increment("c1")
	u.increment("c1")
	u.increment("c2")

	u.mergeFromServer(map[string]int{"c1": 1, "c3": 4})

	if got := u.get("c1"); got != 2 {
		t.Errorf("c1 = %d, want 2 (local wins when higher)", got)
	}
	if got := u.get("c2"); got != 1 {
		t.Errorf("c2 = %d, want 1 (absent from server, untouched)", got)
	}
	if got := u.get("c3"); got != 4 {
		t.Errorf("c3 = %d, want 4 (server wins when higher)", got)
	}
}
