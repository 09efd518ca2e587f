package plan

import (
	"fmt"

	"github.com/asaidimu/go-persistmap/core/parts"
)

// build creates the part described by spec. A child without an op inherits
// the op of its parent, as the assignments of Set and Insert do.
func build(spec Part, parent parts.Operation) (parts.Part, error) {
	op := parts.Operation(spec.Op)
	if op == parts.None && parent != parts.None {
		op = parent
	}

	var p parts.Part
	var err error
	switch op {
	case parts.From, parts.Join, parts.LeftJoin, parts.RightJoin, parts.FullJoin:
		p, err = parts.NewTable(op, spec.Entity, spec.Alias)

	case parts.Select, parts.CreateTable, parts.OutParameterDefinition:
		p = decorator(op, spec.Entity)

	case parts.Set, parts.Insert:
		if parent == op {
			p = parts.NewAssign(op, nil, spec.Field, spec.Value)
		} else {
			p = decorator(op, spec.Entity)
		}

	case parts.Procedure:
		p = parts.NewNamedDecorator(op, first(spec.Name, spec.Entity))

	case parts.Parameter:
		p = parts.NewAssign(op, nil, first(spec.Name, spec.Field), spec.Value)

	case parts.SelectMap, parts.Include, parts.Max, parts.Min, parts.Count,
		parts.OrderBy, parts.OrderByDesc, parts.ThenBy, parts.ThenByDesc, parts.GroupBy:
		f := parts.NewField(op, nil, spec.Field)
		f.Entity = spec.Entity
		f.EntityAlias = spec.Alias
		f.FieldAlias = spec.As
		f.Ignored = spec.Ignored
		p = f

	case parts.Column, parts.PrimaryColumn, parts.AddColumn, parts.ForeignKey, parts.PrimaryKey,
		parts.OutputParameter, parts.OutParameterDeclare, parts.OutParameterSet, parts.OutParameterSelect,
		parts.CreateDatabase:
		p = parts.NewValues(op, nil, values(spec))

	case parts.Update, parts.Delete, parts.AlterTable, parts.DropTable:
		p = parts.NewText(op, first(spec.Text, spec.Entity))

	case parts.DropColumn:
		p = parts.NewText(op, first(spec.Text, spec.Field))

	case parts.None, parts.Where, parts.WhereAnd, parts.WhereOr, parts.JoinOn, parts.AndOn, parts.OrOn:
		if spec.Text == "" {
			p = parts.NewDelegate(op, nil, nil)
		} else {
			p = parts.NewText(op, spec.Text)
		}

	default:
		err = fmt.Errorf("%w: %s cannot be described in a plan", parts.ErrInvalidPart, op)
	}
	if err != nil {
		return nil, err
	}

	if len(spec.Children) == 0 {
		return p, nil
	}
	items, ok := p.(parts.Items)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot hold children", parts.ErrInvalidPart, op)
	}
	for _, child := range spec.Children {
		c, err := build(child, op)
		if err != nil {
			return nil, err
		}
		if err := items.Add(c); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return p, nil
}

func decorator(op parts.Operation, entity string) *parts.DecoratorPart {
	d := parts.NewDecorator(op, nil)
	d.Entity = entity
	return d
}

func values(spec Part) map[string]any {
	v := map[string]any{
		parts.KeyMember:        spec.Field,
		parts.KeyNullable:      spec.Nullable,
		parts.KeyAutoIncrement: spec.AutoIncrement,
	}
	if spec.Type != "" {
		v[parts.KeyTypeName] = spec.Type
	}
	if spec.Name != "" {
		v[parts.KeyName] = spec.Name
	}
	if spec.Value != nil {
		v[parts.KeyValue] = spec.Value
	}
	if len(spec.Members) > 0 {
		v[parts.KeyMembers] = []string(spec.Members)
	}
	if spec.References != nil {
		v[parts.KeyReferenceTable] = spec.References.Table
		v[parts.KeyReferenceMember] = spec.References.Field
	}
	return v
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
