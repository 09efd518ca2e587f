package parts

import "slices"

// ValueConverter transforms the materialized values of one column.
type ValueConverter struct {
	ID        string
	Transform Converter
}

// CompiledQuery is the immutable result of compiling a container.
type CompiledQuery struct {
	text       string
	parts      PartsContainer
	converters []ValueConverter
}

// NewCompiledQuery creates a compiled query. The converters are copied.
func NewCompiledQuery(text string, parts PartsContainer, converters []ValueConverter) *CompiledQuery {
	return &CompiledQuery{text: text, parts: parts, converters: slices.Clone(converters)}
}

// Text is the SQL text.
func (q *CompiledQuery) Text() string { return q.text }

// Parts is the container the query was compiled from.
func (q *CompiledQuery) Parts() PartsContainer { return q.parts }

// Converters returns the column converters in select-list order.
func (q *CompiledQuery) Converters() []ValueConverter { return slices.Clone(q.converters) }

// Converter returns the converter registered for column id.
func (q *CompiledQuery) Converter(id string) (Converter, bool) {
	for _, c := range q.converters {
		if c.ID == id {
			return c.Transform, true
		}
	}
	return nil, false
}

func (q *CompiledQuery) String() string { return q.text }
