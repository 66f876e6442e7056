package sqlgen

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/xaenox/realty-bot/internal/schema"
)

// Validator is the last gate before execution. It parses the query with the
// PostgreSQL parser and rejects anything outside the allowed shape.
type Validator struct {
	schema *schema.Descriptor
	shape  Shape
}

func NewValidator(d *schema.Descriptor, shape Shape) *Validator {
	return &Validator{schema: d, shape: shape}
}

// Validate checks a sanitized query. When city is not empty the outer where
// clause must carry shape.CityColumn = city as a top-level conjunct, so no
// other branch of the query can bypass the filter. city is expected lower-cased.
func (v *Validator) Validate(query, city string) error {
	if err := v.shape.check(query); err != nil {
		return err
	}

	tree, err := pg_query.Parse(query)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}
	if len(tree.GetStmts()) != 1 {
		return fmt.Errorf("%w: expected one statement, got %d", ErrMalformedQuery, len(tree.GetStmts()))
	}

	sel := tree.GetStmts()[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return fmt.Errorf("%w: not a select statement", ErrMalformedQuery)
	}
	if op := sel.GetOp(); (op != pg_query.SetOperation_SETOP_NONE && op != pg_query.SetOperation_SET_OPERATION_UNDEFINED) ||
		sel.GetLarg() != nil || sel.GetRarg() != nil {
		return fmt.Errorf("%w: set operations are not allowed", ErrMalformedQuery)
	}

	var tableErr error
	walk(sel.ProtoReflect(), func(m protoreflect.Message) {
		if rv, ok := m.Interface().(*pg_query.RangeVar); ok && tableErr == nil && rv.GetRelname() != v.schema.Table() {
			tableErr = fmt.Errorf("%w: table %q is not allowed", ErrMalformedQuery, rv.GetRelname())
		}
	})
	if tableErr != nil {
		return tableErr
	}

	if where := sel.GetWhereClause(); where != nil {
		var colErr error
		walk(where.ProtoReflect(), func(m protoreflect.Message) {
			if ref, ok := m.Interface().(*pg_query.ColumnRef); ok && colErr == nil {
				if col := columnName(ref); !v.schema.Filterable(col) {
					colErr = fmt.Errorf("%w: column %q is not allowed in filters", ErrMalformedQuery, col)
				}
			}
		})
		if colErr != nil {
			return colErr
		}
	}

	if city != "" && !v.hasCityConjunct(sel.GetWhereClause(), city) {
		return fmt.Errorf("%w: %s filter is not a top-level condition", ErrMalformedQuery, v.shape.CityColumn)
	}
	return nil
}

// hasCityConjunct reports whether node is the city equality or an AND whose
// operands include it.
func (v *Validator) hasCityConjunct(node *pg_query.Node, city string) bool {
	if node == nil {
		return false
	}
	if be := node.GetBoolExpr(); be != nil {
		if be.GetBoolop() != pg_query.BoolExprType_AND_EXPR {
			return false
		}
		for _, arg := range be.GetArgs() {
			if v.hasCityConjunct(arg, city) {
				return true
			}
		}
		return false
	}

	expr := node.GetAExpr()
	if expr == nil || expr.GetKind() != pg_query.A_Expr_Kind_AEXPR_OP {
		return false
	}
	if name := expr.GetName(); len(name) != 1 || name[0].GetString_().GetSval() != "=" {
		return false
	}
	return columnName(expr.GetLexpr().GetColumnRef()) == v.shape.CityColumn &&
		expr.GetRexpr().GetAConst().GetSval().GetSval() == city
}

// walk visits m and every message nested in it.
func walk(m protoreflect.Message, visit func(protoreflect.Message)) {
	if !m.IsValid() {
		return
	}
	visit(m)
	m.Range(func(fd protoreflect.FieldDescriptor, val protoreflect.Value) bool {
		switch {
		case fd.IsMap() || fd.Message() == nil:
		case fd.IsList():
			list := val.List()
			for i := 0; i < list.Len(); i++ {
				walk(list.Get(i).Message(), visit)
			}
		default:
			walk(val.Message(), visit)
		}
		return true
	})
}

// columnName returns the last name part of a column reference, so both
// price and listings.price yield "price".
func columnName(ref *pg_query.ColumnRef) string {
	name := ""
	for _, f := range ref.GetFields() {
		if s := f.GetString_(); s != nil {
			name = s.GetSval()
		}
	}
	return name
}
