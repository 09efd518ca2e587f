package builder

import (
	"context"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/persistence"
	"github.com/asaidimu/go-persistmap/core/schema"
)

// CreateDatabase builds a statement creating the database name.
func CreateDatabase(ctx *persistence.Context, name string, opts ...Option) *Statement {
	c := newChain(parts.NewContainer(), ctx, opts)
	if name == "" {
		c.fail(fmt.Errorf("%w: database name is empty", parts.ErrInvalidPart))
	}
	c.fail(c.container.Add(parts.NewValues(parts.CreateDatabase, nil, map[string]any{parts.KeyName: name})))
	return &Statement{c: c, gen: c.gen}
}

// ProcedureBuilder builds the call of a stored procedure.
type ProcedureBuilder struct {
	c   *chain
	gen uint64
}

// Procedure starts the call of the stored procedure name.
func Procedure(ctx *persistence.Context, name string, opts ...Option) *ProcedureBuilder {
	c := newChain(parts.NewContainer(), ctx, opts)
	if name == "" {
		c.fail(fmt.Errorf("%w: procedure name is empty", parts.ErrInvalidPart))
	}
	c.fail(c.container.Add(parts.NewNamedDecorator(parts.Procedure, name)))
	return &ProcedureBuilder{c: c, gen: c.gen}
}

func (b *ProcedureBuilder) step(f func(c *chain) error) *ProcedureBuilder {
	c, gen := b.c.advance(b.gen, func() error { return f(b.c) })
	return &ProcedureBuilder{c: c, gen: gen}
}

// Param passes value as the next input argument.
func (b *ProcedureBuilder) Param(name string, value any) *ProcedureBuilder {
	return b.step(func(c *chain) error {
		return c.container.AddToLast(parts.NewAssign(parts.Parameter, nil, name, value), parts.Procedure)
	})
}

// Output passes the variable name as an output argument. The variable is
// declared with the column type of t, set to initial before the call, and
// read back as a column named name after it.
func (b *ProcedureBuilder) Output(name string, t reflect.Type, initial any) *ProcedureBuilder {
	return b.step(func(c *chain) error {
		if name == "" {
			return fmt.Errorf("%w: output parameter has no name", parts.ErrInvalidPart)
		}
		declare := parts.NewValues(parts.OutParameterDeclare, nil, map[string]any{
			parts.KeyName:       name,
			parts.KeyMemberType: t,
		})
		set := parts.NewValues(parts.OutParameterSet, nil, map[string]any{
			parts.KeyName:  name,
			parts.KeyValue: initial,
		})
		if err := c.container.AddBefore(declare, parts.Procedure); err != nil {
			return err
		}
		if err := c.container.AddBefore(set, parts.Procedure); err != nil {
			return err
		}
		arg := parts.NewValues(parts.OutputParameter, nil, map[string]any{parts.KeyName: name})
		if err := c.container.AddToLast(arg, parts.Procedure); err != nil {
			return err
		}
		out := parts.NewValues(parts.OutParameterSelect, nil, map[string]any{parts.KeyName: name})
		return c.container.AddToLast(out, parts.OutParameterDefinition)
	})
}

// Err reports the errors accumulated while building the call.
func (b *ProcedureBuilder) Err() error {
	return b.c.check(b.gen)
}

// Container returns the parts of the call.
func (b *ProcedureBuilder) Container() parts.PartsContainer {
	return b.c.container
}

// Compile compiles the call.
func (b *ProcedureBuilder) Compile() (*parts.CompiledQuery, error) {
	return b.c.compile(b.gen)
}

// Enqueue queues the call on its Context. Output values are discarded.
func (b *ProcedureBuilder) Enqueue() (*persistence.PartsCommand, error) {
	return b.c.enqueue(b.gen)
}

// Call runs the procedure immediately and returns the row of output values,
// or nil when the call has no output parameters.
func (b *ProcedureBuilder) Call(ctx context.Context) (schema.Document, error) {
	if err := b.c.check(b.gen); err != nil {
		return nil, err
	}
	if b.c.ctx == nil {
		return nil, errNoContext
	}
	if b.c.container.Last(parts.OutParameterDefinition) == nil {
		_, err := b.c.ctx.Execute(ctx, persistence.NewParts(b.c.container))
		return nil, err
	}
	docs, err := b.c.ctx.Query(ctx, b.c.container)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return schema.Document{}, nil
	}
	return docs[0], nil
}
