package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/hashstructure"
)

type Hashable interface {
	Hash() string
}

type (
	// Set is an unordered collection keyed by a structural hash of its elements
	Set[T comparable] struct {
		hash    map[string]nothing
		storage map[string]T
	}

	nothing struct{}
)

func NewSet[T comparable](initial ...T) *Set[T] {
	s := &Set[T]{
		hash:    make(map[string]nothing),
		storage: make(map[string]T),
	}
	s.Insert(initial...)

	return s
}

func (st *Set[T]) key(elem T) string {
	if hashable, yes := any(elem).(Hashable); yes {
		return hashable.Hash()
	}

	uniqueHash, err := hashstructure.Hash(elem, nil)
	if err != nil {
		return fmt.Sprintf("%#v", elem)
	}

	return fmt.Sprintf("%d", uniqueHash)
}

func (st *Set[T]) Exists(element T) bool {
	if st == nil {
		return false
	}
	_, exists := st.hash[st.key(element)]
	return exists
}

func (st *Set[T]) Insert(elements ...T) {
	for _, elem := range elements {
		hash := st.key(elem)
		st.hash[hash] = nothing{}
		st.storage[hash] = elem
	}
}

func (st *Set[T]) Len() int {
	if st == nil {
		return 0
	}
	return len(st.hash)
}

// Array returns the elements sorted by their printed form so output is deterministic
func (st *Set[T]) Array() []T {
	arr := make([]T, 0, st.Len())
	if st == nil {
		return arr
	}
	for _, value := range st.storage {
		arr = append(arr, value)
	}
	sort.Slice(arr, func(i, j int) bool {
		return fmt.Sprint(arr[i]) < fmt.Sprint(arr[j])
	})

	return arr
}

func (st *Set[T]) String() string {
	values := []string{}
	for _, value := range st.Array() {
		values = append(values, fmt.Sprint(value))
	}

	return fmt.Sprintf("[%s]", strings.Join(values, ", "))
}
