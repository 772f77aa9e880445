package cache

import (
	"errors"
	"testing"
	"time"
)

func TestGet_ReadThrough(t *testing.T) {
	c := New(8, time.Minute)
	calls := 0
	miss := func() (any, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}

	first, err := c.Get("k", false, miss)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, _ := c.Get("k", false, miss)
	if string(first) != `{"n":1}` || string(second) != `{"n":1}` {
		t.Errorf("got %s then %s, want cached {\"n\":1}", first, second)
	}
	if calls != 1 {
		t.Errorf("miss called %d times, want 1", calls)
	}

	forced, _ := c.Get("k", true, miss)
	if string(forced) != `{"n":2}` {
		t.Errorf("forced = %s, want {\"n\":2}", forced)
	}
}

func TestGet_ErrorNotCached(t *testing.T) {
	c := New(8, time.Minute)
	_, err := c.Get("k", false, func() (any, error) { return nil, errors.New("db down") })
	if err == nil {
		t.Fatal("expected error")
	}
	got, err := c.Get("k", false, func() (any, error) { return "ok", nil })
	if err != nil || string(got) != `"ok"` {
		t.Errorf("after error got %s, %v", got, err)
	}
}

func TestDel(t *testing.T) {
	c := New(8, time.Minute)
	calls := 0
	miss := func() (any, error) { calls++; return calls, nil }

	c.Get("k", false, miss)
	c.Del("k")
	got, _ := c.Get("k", false, miss)
	if string(got) != "2" {
		t.Errorf("after Del got %s, want 2", got)
	}
}

func TestExpiry(t *testing.T) {
	c := New(8, 10*time.Millisecond)
	calls := 0
	miss := func() (any, error) { calls++; return calls, nil }

	c.Get("k", false, miss)
	time.Sleep(50 * time.Millisecond)
	c.Get("k", false, miss)
	if calls != 2 {
		t.Errorf("miss called %d times, want 2 after expiry", calls)
	}
}
