// Package lazyseq provides restartable, pull-based sequences and pairwise
// combinators over them.
//
// A Factory returns a fresh Iterator each time it is called; calling it
// again restarts the sequence from the beginning. Combinators never buffer
// their sources: each element is pulled only when the consumer asks for the
// next pair.
package lazyseq

import "iter"

// Iterator yields elements one at a time. Next returns false once the
// sequence is exhausted and keeps returning false after that.
type Iterator[T any] interface {
	Next() (T, bool)
}

// Factory produces a new traversal of a sequence.
type Factory[T any] func() Iterator[T]

// Pair is one element of a combined sequence.
type Pair[A, B any] struct {
	First  A
	Second B
}

// IteratorFunc adapts a function to the Iterator interface.
type IteratorFunc[T any] func() (T, bool)

// Next calls f.
func (f IteratorFunc[T]) Next() (T, bool) {
	return f()
}

// ============================================================================
// Combinators
// ============================================================================

// Zip pairs the elements of two sequences by position. It stops as soon as
// either source is exhausted and never restarts a source.
func Zip[A, B any](fa Factory[A], fb Factory[B]) Factory[Pair[A, B]] {
	return func() Iterator[Pair[A, B]] {
		ia, ib := fa(), fb()
		done := false
		return IteratorFunc[Pair[A, B]](func() (Pair[A, B], bool) {
			if done {
				return Pair[A, B]{}, false
			}
			a, ok := ia.Next()
			if !ok {
				done = true
				return Pair[A, B]{}, false
			}
			b, ok := ib.Next()
			if !ok {
				done = true
				return Pair[A, B]{}, false
			}
			return Pair[A, B]{First: a, Second: b}, true
		})
	}
}

// Product yields the cartesian product in nested-loop order: every element of
// the inner sequence for the first outer element, then the inner sequence
// restarted for the next outer element, and so on.
//
// An empty inner sequence yields an empty product, even when the outer
// sequence is infinite. An infinite inner sequence never advances the outer.
func Product[A, B any](outer Factory[A], inner Factory[B]) Factory[Pair[A, B]] {
	return func() Iterator[Pair[A, B]] {
		io := outer()
		var (
			ii      Iterator[B]
			cur     A
			started bool
			done    bool
		)
		return IteratorFunc[Pair[A, B]](func() (Pair[A, B], bool) {
			for !done {
				if ii == nil {
					a, ok := io.Next()
					if !ok {
						done = true
						break
					}
					cur = a
					ii = inner()
				}

				b, ok := ii.Next()
				if ok {
					started = true
					return Pair[A, B]{First: cur, Second: b}, true
				}

				if !started {
					// The inner sequence is empty; so is the product.
					done = true
					break
				}
				ii = nil
			}
			return Pair[A, B]{}, false
		})
	}
}

// ============================================================================
// Sources and helpers
// ============================================================================

// FromSlice returns a factory over the elements of s. The slice is not
// copied.
func FromSlice[T any](s []T) Factory[T] {
	return func() Iterator[T] {
		i := 0
		return IteratorFunc[T](func() (T, bool) {
			if i >= len(s) {
				var zero T
				return zero, false
			}
			v := s[i]
			i++
			return v, true
		})
	}
}

// Naturals returns the infinite sequence 0, 1, 2, ...
func Naturals() Factory[int] {
	return func() Iterator[int] {
		n := 0
		return IteratorFunc[int](func() (int, bool) {
			v := n
			n++
			return v, true
		})
	}
}

// Take limits a sequence to its first n elements.
func Take[T any](f Factory[T], n int) Factory[T] {
	return func() Iterator[T] {
		it := f()
		left := n
		return IteratorFunc[T](func() (T, bool) {
			if left <= 0 {
				var zero T
				return zero, false
			}
			v, ok := it.Next()
			if !ok {
				left = 0
				return v, false
			}
			left--
			return v, true
		})
	}
}

// Map applies fn to every element as it is pulled.
func Map[T, U any](f Factory[T], fn func(T) U) Factory[U] {
	return func() Iterator[U] {
		it := f()
		return IteratorFunc[U](func() (U, bool) {
			v, ok := it.Next()
			if !ok {
				var zero U
				return zero, false
			}
			return fn(v), true
		})
	}
}

// Collect drains a fresh traversal into a slice. It does not return for
// infinite sequences.
func Collect[T any](f Factory[T]) []T {
	var out []T
	it := f()
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		out = append(out, v)
	}
	return out
}

// All adapts a factory to a range-over-func sequence. Each range loop starts
// a fresh traversal.
func All[T any](f Factory[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		it := f()
		for v, ok := it.Next(); ok; v, ok = it.Next() {
			if !yield(v) {
				return
			}
		}
	}
}
