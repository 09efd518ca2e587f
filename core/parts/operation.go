package parts

import "fmt"

// Operation is the semantic role of a part. The compiler dispatches on it.
type Operation int

const (
	None Operation = iota

	From
	Join
	LeftJoin
	RightJoin
	FullJoin
	JoinOn
	AndOn
	OrOn

	Where
	WhereAnd
	WhereOr
	OrderBy
	OrderByDesc
	ThenBy
	ThenByDesc
	GroupBy

	Select
	SelectMap
	Include
	Max
	Min
	Count

	Update
	Set
	Insert
	Delete

	CreateTable
	Column
	PrimaryColumn
	ForeignKey
	PrimaryKey
	AlterTable
	DropTable
	AddColumn
	DropColumn

	Procedure
	Parameter
	OutputParameter
	OutParameterDeclare
	OutParameterSet
	OutParameterSelect
	OutParameterDefinition

	CreateDatabase

	// NumOperations is the number of operations. It is not an operation.
	NumOperations
)

var operationNames = [...]string{
	None:                   "None",
	From:                   "From",
	Join:                   "Join",
	LeftJoin:               "LeftJoin",
	RightJoin:              "RightJoin",
	FullJoin:               "FullJoin",
	JoinOn:                 "JoinOn",
	AndOn:                  "AndOn",
	OrOn:                   "OrOn",
	Where:                  "Where",
	WhereAnd:               "WhereAnd",
	WhereOr:                "WhereOr",
	OrderBy:                "OrderBy",
	OrderByDesc:            "OrderByDesc",
	ThenBy:                 "ThenBy",
	ThenByDesc:             "ThenByDesc",
	GroupBy:                "GroupBy",
	Select:                 "Select",
	SelectMap:              "SelectMap",
	Include:                "Include",
	Max:                    "Max",
	Min:                    "Min",
	Count:                  "Count",
	Update:                 "Update",
	Set:                    "Set",
	Insert:                 "Insert",
	Delete:                 "Delete",
	CreateTable:            "CreateTable",
	Column:                 "Column",
	PrimaryColumn:          "PrimaryColumn",
	ForeignKey:             "ForeignKey",
	PrimaryKey:             "PrimaryKey",
	AlterTable:             "AlterTable",
	DropTable:              "DropTable",
	AddColumn:              "AddColumn",
	DropColumn:             "DropColumn",
	Procedure:              "Procedure",
	Parameter:              "Parameter",
	OutputParameter:        "OutputParameter",
	OutParameterDeclare:    "OutParameterDeclare",
	OutParameterSet:        "OutParameterSet",
	OutParameterSelect:     "OutParameterSelect",
	OutParameterDefinition: "OutParameterDefinition",
	CreateDatabase:         "CreateDatabase",
}

// Fails to compile when an operation is appended without a name.
var _ = operationNames[NumOperations-1]

func (op Operation) String() string {
	if op >= 0 && op < NumOperations {
		return operationNames[op]
	}
	return fmt.Sprintf("Operation(%d)", int(op))
}

// ParseOperation returns the operation with the given name.
func ParseOperation(name string) (Operation, error) {
	for op, n := range operationNames {
		if n == name {
			return Operation(op), nil
		}
	}
	return None, fmt.Errorf("unknown operation %q", name)
}

// IsEntity reports whether op introduces a table into a query.
func (op Operation) IsEntity() bool {
	switch op {
	case From, Join, LeftJoin, RightJoin, FullJoin:
		return true
	}
	return false
}

// IsJoin reports whether op joins a table.
func (op Operation) IsJoin() bool {
	return op.IsEntity() && op != From
}

// IsJoinCondition reports whether op is a condition of a join.
func (op Operation) IsJoinCondition() bool {
	return op == JoinOn || op == AndOn || op == OrOn
}

// IsProjection reports whether op produces a select-list entry.
func (op Operation) IsProjection() bool {
	switch op {
	case SelectMap, Include, Max, Min, Count:
		return true
	}
	return false
}
