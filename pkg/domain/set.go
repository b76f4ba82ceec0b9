package domain

// OrderedSet keeps distinct values in first seen order.
type OrderedSet[T comparable] struct {
	elements map[T]struct{}
	order    []T
}

func NewOrderedSet[T comparable](elements ...T) *OrderedSet[T] {
	set := &OrderedSet[T]{
		elements: make(map[T]struct{}),
		order:    make([]T, 0),
	}
	set.Add(elements...)
	return set
}

func (s *OrderedSet[T]) Add(items ...T) {
	for _, item := range items {
		if _, exists := s.elements[item]; !exists {
			s.elements[item] = struct{}{}
			s.order = append(s.order, item)
		}
	}
}

func (s *OrderedSet[T]) Has(item T) bool {
	_, exists := s.elements[item]
	return exists
}

// Size returns the number of elements in the set.
func (s *OrderedSet[T]) Size() int {
	return len(s.elements)
}

// ToSlice returns the elements in the order they were added.
func (s *OrderedSet[T]) ToSlice() []T {
	return append([]T(nil), s.order...)
}

// Chunks splits the elements, in insertion order, into slices of at most n elements.
func (s *OrderedSet[T]) Chunks(n int) [][]T {
	if n <= 0 || len(s.order) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(s.order)+n-1)/n)
	for start := 0; start < len(s.order); start += n {
		end := min(start+n, len(s.order))
		chunks = append(chunks, append([]T(nil), s.order[start:end]...))
	}
	return chunks
}

type Set[T comparable] map[T]struct{}

// NewSet creates a new set from a slice of elements.
func NewSet[T comparable](elements ...T) Set[T] {
	s := make(Set[T])
	s.Add(elements...)
	return s
}

// Add adds elements to the set.
func (s Set[T]) Add(elements ...T) {
	for _, element := range elements {
		s[element] = struct{}{}
	}
}

// Has checks if an element exists in the set.
func (s Set[T]) Has(element T) bool {
	_, found := s[element]
	return found
}

// Size returns the number of elements in the set.
func (s Set[T]) Size() int {
	return len(s)
}
