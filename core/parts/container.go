package parts

import (
	"fmt"
	"slices"
)

// arena owns the parts of one container and hands out their handles.
type arena struct {
	parts []Part
}

func newArena() *arena {
	// Handle 0 stays unassigned.
	return &arena{parts: []Part{nil}}
}

// register takes ownership of p and of every child it already holds.
func (a *arena) register(p Part) error {
	b := p.base()
	if b.arena != nil {
		return fmt.Errorf("%w: %s %q", ErrOwned, b.op, p.ID())
	}
	a.parts = append(a.parts, p)
	b.arena = a
	b.handle = Handle(len(a.parts) - 1)
	if items, ok := p.(Items); ok {
		for _, child := range items.Children() {
			if err := a.register(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *arena) release(p Part) {
	b := p.base()
	if b.arena != a {
		return
	}
	a.parts[b.handle] = nil
	b.arena, b.handle = nil, 0
	if items, ok := p.(Items); ok {
		for _, child := range items.Children() {
			a.release(child)
		}
	}
}

func (a *arena) lookup(h Handle) Part {
	if h <= 0 || int(h) >= len(a.parts) {
		return nil
	}
	return a.parts[h]
}

// sequence is the ordered list of parts shared by containers and the parts
// that hold children.
type sequence struct {
	owner *partBase
	items []Part
	root  *arena
}

func (s *sequence) seq() *sequence { return s }

func (s *sequence) ownerArena() *arena {
	if s.owner != nil {
		return s.owner.arena
	}
	return s.root
}

// Children returns the parts in order.
func (s *sequence) Children() []Part {
	return slices.Clone(s.items)
}

func (s *sequence) claim(p Part) error {
	if p == nil {
		return fmt.Errorf("%w: nil part", ErrInvalidPart)
	}
	if slices.Contains(s.items, p) {
		return fmt.Errorf("%w: %s %q is already added", ErrOwned, p.Operation(), p.ID())
	}
	if a := s.ownerArena(); a != nil {
		return a.register(p)
	}
	if p.base().arena != nil {
		return fmt.Errorf("%w: %s %q", ErrOwned, p.Operation(), p.ID())
	}
	return nil
}

func (s *sequence) add(p Part) error {
	if err := s.claim(p); err != nil {
		return err
	}
	s.items = append(s.items, p)
	return nil
}

func (s *sequence) insertAt(i int, p Part) error {
	if err := s.claim(p); err != nil {
		return err
	}
	s.items = slices.Insert(s.items, i, p)
	return nil
}

func (s *sequence) lastIndex(match func(Part) bool) int {
	for i := len(s.items) - 1; i >= 0; i-- {
		if match(s.items[i]) {
			return i
		}
	}
	return -1
}

func tagged(op Operation) func(Part) bool {
	return func(p Part) bool { return p.Operation() == op }
}

// AddBefore inserts p immediately before the last part tagged op, or first
// when there is none.
func (s *sequence) AddBefore(p Part, op Operation) error {
	i := s.lastIndex(tagged(op))
	if i < 0 {
		i = 0
	}
	return s.insertAt(i, p)
}

// AddAfter inserts p immediately after the last part tagged op, or last when
// there is none.
func (s *sequence) AddAfter(p Part, op Operation) error {
	i := s.lastIndex(tagged(op))
	if i < 0 {
		return s.add(p)
	}
	return s.insertAt(i+1, p)
}

// Remove removes p and gives up ownership of it.
func (s *sequence) Remove(p Part) bool {
	i := s.lastIndex(func(c Part) bool { return Same(c, p) })
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	if a := s.ownerArena(); a != nil {
		a.release(p)
	}
	return true
}

// PartsContainer is the ordered, mutable statement representation handed to
// a compiler.
type PartsContainer interface {
	Add(p Part) error
	AddBefore(p Part, op Operation) error
	AddAfter(p Part, op Operation) error
	AddToLast(p Part, op Operation) error
	AddToLastFunc(p Part, op Operation, match func(Part) bool) error
	Remove(p Part) bool
	Parts() []Part
	Last(op Operation) Part
	Lookup(h Handle) Part
	Entities() []*EntityPart
	IsSealed() bool
}

// Container is the default PartsContainer: parts are appended in the order
// they are added.
type Container struct {
	sequence
}

var _ PartsContainer = (*Container)(nil)

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{sequence: sequence{root: newArena()}}
}

// Add appends p.
func (c *Container) Add(p Part) error {
	return c.add(p)
}

// AddToLast adds p into the last decorator tagged op, creating that
// decorator at the end of the container when there is none.
func (c *Container) AddToLast(p Part, op Operation) error {
	return c.AddToLastFunc(p, op, tagged(op))
}

// AddToLastFunc adds p into the last decorator accepted by match. When there
// is none, a decorator tagged op is created at the end of the container.
func (c *Container) AddToLastFunc(p Part, op Operation, match func(Part) bool) error {
	i := c.lastIndex(func(candidate Part) bool {
		_, ok := candidate.(Items)
		return ok && match(candidate)
	})
	if i >= 0 {
		return c.items[i].(Items).Add(p)
	}

	d := NewDecorator(op, p.EntityType())
	if err := c.add(d); err != nil {
		return err
	}
	return d.Add(p)
}

// Parts returns the top-level parts in order.
func (c *Container) Parts() []Part {
	return c.Children()
}

// Last returns the last top-level part tagged op, or nil.
func (c *Container) Last(op Operation) Part {
	if i := c.lastIndex(tagged(op)); i >= 0 {
		return c.items[i]
	}
	return nil
}

// Lookup returns the owned part with handle h, or nil.
func (c *Container) Lookup(h Handle) Part {
	return c.root.lookup(h)
}

// Entities returns the entity parts in the order they were added.
func (c *Container) Entities() []*EntityPart {
	var entities []*EntityPart
	for _, p := range c.items {
		if e, ok := p.(*EntityPart); ok {
			entities = append(entities, e)
		}
	}
	return entities
}

// IsSealed reports whether any top-level decorator is sealed.
func (c *Container) IsSealed() bool {
	for _, p := range c.items {
		if d, ok := p.(*DecoratorPart); ok && d.IsSealed() {
			return true
		}
	}
	return false
}

// SelectContainer routes parts of a select statement: Include fields go into
// the trailing select list, qualified with the most recently added entity.
type SelectContainer struct {
	*Container
}

var _ PartsContainer = (*SelectContainer)(nil)

// NewSelectContainer creates an empty select container.
func NewSelectContainer() *SelectContainer {
	return &SelectContainer{Container: NewContainer()}
}

// Add appends p, or routes it into the select list when it is an Include.
func (c *SelectContainer) Add(p Part) error {
	op := p.Operation()
	if op.IsEntity() {
		if _, ok := p.(*EntityPart); !ok {
			return fmt.Errorf("%w: %s must be an entity part, got %T", ErrInvalidPart, op, p)
		}
		return c.Container.Add(p)
	}
	if op != Include {
		return c.Container.Add(p)
	}

	if f, ok := p.(*FieldPart); ok {
		if entities := c.Entities(); len(entities) > 0 {
			last := entities[len(entities)-1]
			f.Entity = last.Entity
			f.EntityAlias = last.Alias
		}
	}
	return c.AddToLast(p, Select)
}
