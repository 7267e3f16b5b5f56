package lazyseq

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// counted wraps a factory and counts pulled elements and restarts.
type counted[T any] struct {
	f        Factory[T]
	pulls    int
	restarts int
}

func (c *counted[T]) factory() Factory[T] {
	return func() Iterator[T] {
		c.restarts++
		it := c.f()
		return IteratorFunc[T](func() (T, bool) {
			v, ok := it.Next()
			if ok {
				c.pulls++
			}
			return v, ok
		})
	}
}

func TestZip(t *testing.T) {
	tests := []struct {
		name string
		a    []int
		b    []string
		want []Pair[int, string]
	}{
		{
			name: "shorter first",
			a:    []int{1, 2, 3},
			b:    []string{"a", "b", "c", "d", "e"},
			want: []Pair[int, string]{{1, "a"}, {2, "b"}, {3, "c"}},
		},
		{
			name: "shorter second",
			a:    []int{1, 2, 3},
			b:    []string{"a"},
			want: []Pair[int, string]{{1, "a"}},
		},
		{name: "empty first", a: nil, b: []string{"a"}, want: nil},
		{name: "empty second", a: []int{1}, b: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Collect(Zip(FromSlice(tt.a), FromSlice(tt.b)))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Zip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestZip_Infinite(t *testing.T) {
	got := Collect(Zip(Naturals(), FromSlice([]string{"x", "y"})))
	want := []Pair[int, string]{{0, "x"}, {1, "y"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestZip_NeverRestartsSources(t *testing.T) {
	a := &counted[int]{f: FromSlice([]int{1, 2, 3})}
	b := &counted[int]{f: FromSlice([]int{1, 2, 3, 4, 5})}

	Collect(Zip(a.factory(), b.factory()))
	if a.restarts != 1 || b.restarts != 1 {
		t.Errorf("restarts = %d, %d; want 1, 1", a.restarts, b.restarts)
	}
}

func TestZip_Restartable(t *testing.T) {
	z := Zip(FromSlice([]int{1, 2}), FromSlice([]int{3, 4}))
	first := Collect(z)
	second := Collect(z)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second traversal differs (-first +second):\n%s", diff)
	}
}

func TestProduct(t *testing.T) {
	got := Collect(Product(FromSlice([]string{"a", "b"}), FromSlice([]string{"x", "y"})))
	want := []Pair[string, string]{{"a", "x"}, {"a", "y"}, {"b", "x"}, {"b", "y"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Product mismatch (-want +got):\n%s", diff)
	}
}

func TestProduct_Empty(t *testing.T) {
	tests := []struct {
		name  string
		outer Factory[int]
		inner Factory[int]
	}{
		{"empty outer", FromSlice[int](nil), FromSlice([]int{1, 2})},
		{"empty inner", FromSlice([]int{1, 2, 3}), FromSlice[int](nil)},
		{"empty inner, infinite outer", Naturals(), FromSlice[int](nil)},
		{"both empty", FromSlice[int](nil), FromSlice[int](nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Collect(Product(tt.outer, tt.inner)); len(got) != 0 {
				t.Errorf("expected empty product, got %v", got)
			}
		})
	}
}

func TestProduct_InfiniteInner(t *testing.T) {
	got := Collect(Take(Product(FromSlice([]string{"a", "b"}), Naturals()), 4))
	want := []Pair[string, int]{{"a", 0}, {"a", 1}, {"a", 2}, {"a", 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestProduct_InfiniteOuter(t *testing.T) {
	got := Collect(Take(Product(Naturals(), FromSlice([]string{"x", "y"})), 5))
	want := []Pair[int, string]{{0, "x"}, {0, "y"}, {1, "x"}, {1, "y"}, {2, "x"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestProduct_RestartsInnerPerOuter(t *testing.T) {
	outer := &counted[int]{f: FromSlice([]int{1, 2, 3})}
	inner := &counted[int]{f: FromSlice([]int{1, 2})}

	got := Collect(Product(outer.factory(), inner.factory()))
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	if outer.restarts != 1 {
		t.Errorf("outer restarts = %d, want 1", outer.restarts)
	}
	if inner.restarts != 3 {
		t.Errorf("inner restarts = %d, want 3", inner.restarts)
	}
}

func TestProduct_PullsOnDemand(t *testing.T) {
	outer := &counted[int]{f: Naturals()}
	inner := &counted[int]{f: Naturals()}

	it := Product(outer.factory(), inner.factory())()
	for i := 0; i < 3; i++ {
		if _, ok := it.Next(); !ok {
			t.Fatal("unexpected end")
		}
	}
	if outer.pulls != 1 || inner.pulls != 3 {
		t.Errorf("pulls = outer %d, inner %d; want 1, 3", outer.pulls, inner.pulls)
	}
}

func TestExhaustedStaysExhausted(t *testing.T) {
	its := map[string]Iterator[Pair[int, int]]{
		"zip":     Zip(FromSlice([]int{1}), FromSlice([]int{1}))(),
		"product": Product(FromSlice([]int{1}), FromSlice([]int{1}))(),
	}
	for name, it := range its {
		it.Next()
		for i := 0; i < 3; i++ {
			if _, ok := it.Next(); ok {
				t.Errorf("%s: Next after exhaustion returned ok", name)
			}
		}
	}
}

func TestMapAndAll(t *testing.T) {
	doubled := Map(FromSlice([]int{1, 2, 3}), func(v int) int { return v * 2 })

	var got []int
	for v := range All(doubled) {
		got = append(got, v)
	}
	if diff := cmp.Diff([]int{2, 4, 6}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAll_EarlyBreak(t *testing.T) {
	var got []int
	for v := range All(Naturals()) {
		if v == 3 {
			break
		}
		got = append(got, v)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTake(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{2, []int{0, 1}},
		{-1, nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Collect(Take(Naturals(), tt.n))); diff != "" {
			t.Errorf("Take(%d) mismatch (-want +got):\n%s", tt.n, diff)
		}
	}

	if got := Collect(Take(FromSlice([]int{7}), 5)); len(got) != 1 {
		t.Errorf("Take past the end = %v", got)
	}
}
