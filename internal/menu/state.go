package menu

// State is the type-erased view of a MenuState used by the tree.
type State interface {
	Item() MenuItem
	Changed() bool
	Active() bool
	AnyValue() any
}

// MenuState is the live value of one item. It is never modified after
// construction; updates replace it.
type MenuState[T any] struct {
	item    MenuItem
	value   T
	changed bool
	active  bool
}

func NewMenuState[T any](item MenuItem, value T, changed, active bool) MenuState[T] {
	return MenuState[T]{item: item, value: value, changed: changed, active: active}
}

func (s MenuState[T]) Item() MenuItem { return s.item }
func (s MenuState[T]) Value() T       { return s.value }
func (s MenuState[T]) Changed() bool  { return s.changed }
func (s MenuState[T]) Active() bool   { return s.active }
func (s MenuState[T]) AnyValue() any  { return s.value }

// WithActive returns a copy with the edit-in-progress flag replaced.
func (s MenuState[T]) WithActive(active bool) MenuState[T] {
	s.active = active

	return s
}

// NextState derives the state that follows prev when value arrives.
// changed is set only when a previous value of the same type exists and
// differs; active is carried over from prev.
func NextState[T any](item MenuItem, value T, prev State, equal func(a, b T) bool) MenuState[T] {
	changed := false
	active := false
	if prev != nil {
		active = prev.Active()
		old, ok := prev.AnyValue().(T)
		changed = !ok || !equal(old, value)
	}

	return NewMenuState(item, value, changed, active)
}

// ValueAs extracts a typed value from a type-erased state.
func ValueAs[T any](s State) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	v, ok := s.AnyValue().(T)

	return v, ok
}
