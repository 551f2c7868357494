package menu

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownParent = errors.New("menu: unknown parent submenu")
	ErrUnknownItem   = errors.New("menu: unknown item")
	ErrDuplicateItem = errors.New("menu: item id already registered")
	ErrRootImmutable = errors.New("menu: root cannot be modified")
	ErrCyclicParent  = errors.New("menu: submenu cannot move below itself")
)

// MoveDirection is used by Tree.MoveItem.
type MoveDirection int

const (
	MoveUp MoveDirection = iota
	MoveDown
)

// Tree holds the remote's control definitions and their live values.
// Structure is guarded by one mutex; states live in a separate concurrent
// map so value updates never wait on structural edits.
type Tree struct {
	mu       sync.Mutex
	subMenus map[int]SubMenuItem
	children map[int][]MenuItem
	parents  map[int]int

	states sync.Map
}

func NewTree() *Tree {
	t := &Tree{}
	t.reset()

	return t
}

func (t *Tree) reset() {
	root := Root()
	t.subMenus = map[int]SubMenuItem{RootID: root}
	t.children = map[int][]MenuItem{RootID: nil}
	t.parents = make(map[int]int)
}

// Clear drops everything except the root.
func (t *Tree) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
	t.states.Range(func(key, _ any) bool {
		t.states.Delete(key)
		return true
	})
}

// AddMenuItem appends item to the end of parentID's children.
func (t *Tree) AddMenuItem(parentID int, item MenuItem) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.addLocked(parentID, item)
}

func (t *Tree) addLocked(parentID int, item MenuItem) error {
	if _, ok := t.subMenus[parentID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownParent, parentID)
	}
	id := item.Base().ID
	if _, exists := t.parents[id]; exists || id == RootID {
		return fmt.Errorf("%w: %d", ErrDuplicateItem, id)
	}
	t.children[parentID] = append(t.children[parentID], item)
	t.parents[id] = parentID
	if sub, ok := item.(SubMenuItem); ok {
		t.subMenus[id] = sub
		if _, ok := t.children[id]; !ok {
			t.children[id] = nil
		}
	}

	return nil
}

// ReplaceMenuItem swaps the definition with the same id in place, keeping
// its position. A submenu keeps its children when replaced by a submenu.
func (t *Tree) ReplaceMenuItem(item MenuItem) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.replaceLocked(item)
}

func (t *Tree) replaceLocked(item MenuItem) error {
	id := item.Base().ID
	if id == RootID {
		return ErrRootImmutable
	}
	parentID, ok := t.parents[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	siblings := t.children[parentID]
	for i, existing := range siblings {
		if existing.Base().ID == id {
			siblings[i] = item
			break
		}
	}

	_, wasSub := t.subMenus[id]
	sub, isSub := item.(SubMenuItem)
	switch {
	case isSub:
		t.subMenus[id] = sub
		if _, ok := t.children[id]; !ok {
			t.children[id] = nil
		}
	case wasSub:
		t.dropSubtreeLocked(id)
		delete(t.subMenus, id)
		delete(t.children, id)
	}

	return nil
}

// AddOrUpdateItem replaces an existing definition or adds a new one. If the
// item is already registered under a different parent it is moved to the
// end of the new parent's children.
func (t *Tree) AddOrUpdateItem(parentID int, item MenuItem) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := item.Base().ID
	current, exists := t.parents[id]
	if !exists {
		return t.addLocked(parentID, item)
	}
	if current != parentID {
		if _, ok := t.subMenus[parentID]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownParent, parentID)
		}
		if t.isAncestorLocked(id, parentID) {
			return fmt.Errorf("%w: %d under %d", ErrCyclicParent, id, parentID)
		}
		t.children[current] = removeByID(t.children[current], id)
		t.children[parentID] = append(t.children[parentID], item)
		t.parents[id] = parentID
	}

	return t.replaceLocked(item)
}

// isAncestorLocked reports whether ancestor is subID or one of its parents.
func (t *Tree) isAncestorLocked(ancestor, subID int) bool {
	for id := subID; ; {
		if id == ancestor {
			return true
		}
		parent, ok := t.parents[id]
		if !ok {
			return false
		}
		id = parent
	}
}

// RemoveMenuItem removes the item, everything below it and their states.
func (t *Tree) RemoveMenuItem(id int) error {
	if id == RootID {
		return ErrRootImmutable
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	parentID, ok := t.parents[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	t.children[parentID] = removeByID(t.children[parentID], id)
	delete(t.parents, id)
	t.dropSubtreeLocked(id)
	delete(t.subMenus, id)
	delete(t.children, id)
	t.states.Delete(id)

	return nil
}

func (t *Tree) dropSubtreeLocked(subID int) {
	for _, child := range t.children[subID] {
		childID := child.Base().ID
		if _, ok := t.subMenus[childID]; ok {
			t.dropSubtreeLocked(childID)
			delete(t.subMenus, childID)
			delete(t.children, childID)
		}
		delete(t.parents, childID)
		t.states.Delete(childID)
	}
}

// MoveItem shifts an item one place within its parent. Moves past either
// end are ignored.
func (t *Tree) MoveItem(id int, dir MoveDirection) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parentID, ok := t.parents[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	siblings := t.children[parentID]
	idx := indexByID(siblings, id)
	target := idx - 1
	if dir == MoveDown {
		target = idx + 1
	}
	target = max(0, min(target, len(siblings)-1))
	siblings[idx], siblings[target] = siblings[target], siblings[idx]

	return nil
}

// ChildItems returns a copy of the submenu's ordered children.
func (t *Tree) ChildItems(subID int) []MenuItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]MenuItem(nil), t.children[subID]...)
}

// AllItems lists every registered item depth first, root excluded.
func (t *Tree) AllItems() []MenuItem {
	return t.AllItemsFrom(RootID)
}

func (t *Tree) AllItemsFrom(subID int) []MenuItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []MenuItem
	t.walkLocked(subID, func(item MenuItem) {
		out = append(out, item)
	})

	return out
}

func (t *Tree) walkLocked(subID int, fn func(MenuItem)) {
	for _, item := range t.children[subID] {
		fn(item)
		if _, ok := t.subMenus[item.Base().ID]; ok {
			t.walkLocked(item.Base().ID, fn)
		}
	}
}

// SubMenus lists every registered submenu including the root.
func (t *Tree) SubMenus() []SubMenuItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := []SubMenuItem{t.subMenus[RootID]}
	t.walkLocked(RootID, func(item MenuItem) {
		if sub, ok := item.(SubMenuItem); ok {
			out = append(out, sub)
		}
	})

	return out
}

// Item looks a definition up by id. The root is returned for RootID.
func (t *Tree) Item(id int) (MenuItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == RootID {
		return t.subMenus[RootID], true
	}
	parentID, ok := t.parents[id]
	if !ok {
		return nil, false
	}
	for _, item := range t.children[parentID] {
		if item.Base().ID == id {
			return item, true
		}
	}

	return nil, false
}

func (t *Tree) SubMenu(id int) (SubMenuItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.subMenus[id]

	return sub, ok
}

// FindParent returns the submenu holding id.
func (t *Tree) FindParent(id int) (SubMenuItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parentID, ok := t.parents[id]
	if !ok {
		return SubMenuItem{}, false
	}

	return t.subMenus[parentID], true
}

// State returns the cached live value of an item.
func (t *Tree) State(id int) (State, bool) {
	v, ok := t.states.Load(id)
	if !ok {
		return nil, false
	}

	return v.(State), true
}

// SetState replaces the cached value for the state's item.
func (t *Tree) SetState(s State) {
	if s == nil || s.Item() == nil {
		return
	}
	t.states.Store(s.Item().Base().ID, s)
}

func removeByID(items []MenuItem, id int) []MenuItem {
	idx := indexByID(items, id)
	if idx < 0 {
		return items
	}

	return append(items[:idx], items[idx+1:]...)
}

func indexByID(items []MenuItem, id int) int {
	for i, item := range items {
		if item.Base().ID == id {
			return i
		}
	}

	return -1
}
