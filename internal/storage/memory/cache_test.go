package memory

import (
	"testing"
)

// recount recomputes the byte count from scratch for verification.
func recount(c *Cache) int64 {
	var n int64
	c.Ascend(func(k, v string) bool {
		n += Size(k, v)
		return true
	})
	return n
}

func TestCache_Accounting(t *testing.T) {
	c := New()

	steps := []struct {
		name string
		do   func()
		want int64
	}{
		{"insert", func() { c.Set("a", "123") }, 4},
		{"insert second", func() { c.Set("bb", "1") }, 7},
		{"overwrite grows", func() { c.Set("a", "123456") }, 10},
		{"overwrite shrinks", func() { c.Set("a", "") }, 4},
		{"delete", func() { c.Delete("bb") }, 1},
		{"delete missing", func() { c.Delete("zz") }, 1},
	}

	for _, st := range steps {
		st.do()
		if c.Bytes() != st.want {
			t.Errorf("%s: Bytes() = %d, want %d", st.name, c.Bytes(), st.want)
		}
		if got := recount(c); got != c.Bytes() {
			t.Errorf("%s: recount = %d, Bytes() = %d", st.name, got, c.Bytes())
		}
	}
}

func TestCache_GetDelete(t *testing.T) {
	c := New()
	c.Set("k", "v")

	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Errorf("Get(k) = %q, %v", v, ok)
	}
	if !c.Has("k") {
		t.Error("Has(k) = false")
	}
	if v, ok := c.Delete("k"); !ok || v != "v" {
		t.Errorf("Delete(k) = %q, %v", v, ok)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Get(k) after Delete should miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_AscendOrdered(t *testing.T) {
	c := New()
	for _, k := range []string{"delta", "alpha", "charlie", "bravo"} {
		c.Set(k, "x")
	}

	var keys []string
	c.Ascend(func(k, _ string) bool {
		keys = append(keys, k)
		return true
	})
	want := []string{"alpha", "bravo", "charlie", "delta"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Ascend order = %v, want %v", keys, want)
		}
	}
}

func TestCache_CloneIsolation(t *testing.T) {
	base := New()
	base.Set("shared", "1")

	top := base.Clone()
	top.Set("shared", "22")
	top.Set("only-top", "x")
	base.Delete("shared")

	if v, ok := top.Get("shared"); !ok || v != "22" {
		t.Errorf("top.Get(shared) = %q, %v", v, ok)
	}
	if base.Has("only-top") {
		t.Error("mutation of clone leaked into original")
	}
	if base.Bytes() != 0 {
		t.Errorf("base.Bytes() = %d, want 0", base.Bytes())
	}
	if top.Bytes() != recount(top) {
		t.Errorf("top.Bytes() = %d, recount = %d", top.Bytes(), recount(top))
	}
}
