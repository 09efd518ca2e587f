// Package plan loads statements described in YAML into parts containers, so
// that scripts can be compiled and run without Go entity types.
//
//	dialect: sqlite
//	statements:
//	  - name: orders
//	    parts:
//	      - op: CreateTable
//	        entity: Orders
//	        children:
//	          - {op: PrimaryColumn, field: OrderID, type: INTEGER, autoIncrement: true}
//	          - {op: Column, field: ShipName, type: TEXT, nullable: true}
//	  - name: cleanup
//	    sql: DELETE FROM Orders
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/asaidimu/go-persistmap/core/parts"
	"github.com/asaidimu/go-persistmap/core/persistence"
	"gopkg.in/yaml.v3"
)

// Plan is an ordered list of statements.
type Plan struct {
	Dialect    string      `yaml:"dialect,omitempty"`
	Statements []Statement `yaml:"statements"`
}

// Statement is either raw SQL or a list of parts.
type Statement struct {
	Name  string `yaml:"name,omitempty"`
	SQL   string `yaml:"sql,omitempty"`
	Parts []Part `yaml:"parts,omitempty"`
}

// Part describes one part. Which fields apply depends on Op.
type Part struct {
	Op            Op         `yaml:"op"`
	Entity        string     `yaml:"entity,omitempty"`
	Alias         string     `yaml:"alias,omitempty"`
	Field         string     `yaml:"field,omitempty"`
	As            string     `yaml:"as,omitempty"`
	Text          string     `yaml:"text,omitempty"`
	Name          string     `yaml:"name,omitempty"`
	Value         any        `yaml:"value,omitempty"`
	Type          string     `yaml:"type,omitempty"`
	Nullable      bool       `yaml:"nullable,omitempty"`
	AutoIncrement bool       `yaml:"autoIncrement,omitempty"`
	Members       StringList `yaml:"members,omitempty"`
	References    *Reference `yaml:"references,omitempty"`
	Ignored       bool       `yaml:"ignored,omitempty"`
	Children      []Part     `yaml:"children,omitempty"`
}

// Reference names the column a foreign key points to.
type Reference struct {
	Table string `yaml:"table"`
	Field string `yaml:"field"`
}

// Op is an operation written by name.
type Op parts.Operation

func (o *Op) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: operation must be a name", node.Line)
	}
	op, err := parts.ParseOperation(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*o = Op(op)
	return nil
}

func (o Op) MarshalYAML() (any, error) {
	return parts.Operation(o).String(), nil
}

// StringList is a string or a list of strings.
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	return fmt.Errorf("line %d: expected string or list", node.Line)
}

// Load reads and parses the plan file at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

// Parse parses a plan. Unknown keys are rejected.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &p, nil
}

func (p *Plan) validate() error {
	if len(p.Statements) == 0 {
		return errors.New("no statements")
	}
	for i, s := range p.Statements {
		if (s.SQL == "") == (len(s.Parts) == 0) {
			return fmt.Errorf("statement %d (%s): needs exactly one of sql or parts", i+1, s.Name)
		}
	}
	return nil
}

// Commands turns every statement into a command, in order.
func (p *Plan) Commands() ([]persistence.Command, error) {
	commands := make([]persistence.Command, 0, len(p.Statements))
	for i, s := range p.Statements {
		cmd, err := s.Command()
		if err != nil {
			return nil, fmt.Errorf("statement %d (%s): %w", i+1, s.Name, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

// Command returns the statement as a command.
func (s Statement) Command() (persistence.Command, error) {
	if s.SQL != "" {
		return persistence.NewQuery(s.SQL), nil
	}
	c, err := s.Container()
	if err != nil {
		return nil, err
	}
	return persistence.NewParts(c), nil
}

// Container builds the parts of the statement. Select statements get a
// select container so that Include fields join the select list.
func (s Statement) Container() (parts.PartsContainer, error) {
	var c parts.PartsContainer = parts.NewContainer()
	for _, p := range s.Parts {
		if parts.Operation(p.Op) == parts.Select {
			c = parts.NewSelectContainer()
			break
		}
	}
	for _, spec := range s.Parts {
		p, err := build(spec, parts.None)
		if err != nil {
			return nil, err
		}
		if err := c.Add(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}
