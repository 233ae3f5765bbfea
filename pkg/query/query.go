// Package query turns an explicit list of {field, operator, value} filters into
// a parameterized WHERE clause. Fields are resolved through a whitelist so
// callers never interpolate user input into SQL.
package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpIsNull   Operator = "is_null"
)

var sqlOperators = map[Operator]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

type Sort struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Spec is a complete listing request.
type Spec struct {
	Filters []Filter `json:"filters"`
	Sort    []Sort   `json:"sort"`
}

// Fields maps public field names to qualified column names.
type Fields map[string]string

// Where appends a filter and returns the spec for chaining.
func (s Spec) Where(field string, op Operator, value any) Spec {
	s.Filters = append(append([]Filter(nil), s.Filters...), Filter{Field: field, Operator: op, Value: value})
	return s
}

// Build renders the filters into a WHERE fragment and its arguments. An empty
// spec yields an empty fragment.
func Build(spec Spec, fields Fields) (string, []any, error) {
	clauses := make([]string, 0, len(spec.Filters))
	args := make([]any, 0, len(spec.Filters))

	for _, f := range spec.Filters {
		column, ok := fields[f.Field]
		if !ok {
			return "", nil, invalidField(f.Field, fields)
		}
		switch f.Operator {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
			if f.Value == nil {
				return "", nil, invalidValue(f, "value is required")
			}
			clauses = append(clauses, fmt.Sprintf("%s %s ?", column, sqlOperators[f.Operator]))
			args = append(args, f.Value)
		case OpIn:
			values, ok := asSlice(f.Value)
			if !ok || len(values) == 0 {
				return "", nil, invalidValue(f, "value must be a non-empty list")
			}
			clauses = append(clauses, fmt.Sprintf("%s IN ?", column))
			args = append(args, values)
		case OpContains:
			text, ok := f.Value.(string)
			if !ok || strings.TrimSpace(text) == "" {
				return "", nil, invalidValue(f, "value must be a non-empty string")
			}
			clauses = append(clauses, fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column))
			args = append(args, "%"+escapeLike(strings.ToLower(text))+"%")
		case OpIsNull:
			isNull, ok := f.Value.(bool)
			if !ok {
				return "", nil, invalidValue(f, "value must be a boolean")
			}
			if isNull {
				clauses = append(clauses, fmt.Sprintf("%s IS NULL", column))
			} else {
				clauses = append(clauses, fmt.Sprintf("%s IS NOT NULL", column))
			}
		default:
			return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported filter operator").
				WithDetails(map[string]any{"field": f.Field, "operator": f.Operator})
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

// OrderBy renders the sort list; fallback is used when none is supplied.
func OrderBy(spec Spec, fields Fields, fallback string) (string, error) {
	if len(spec.Sort) == 0 {
		return fallback, nil
	}
	parts := make([]string, 0, len(spec.Sort))
	for _, s := range spec.Sort {
		column, ok := fields[s.Field]
		if !ok {
			return "", invalidField(s.Field, fields)
		}
		dir := "ASC"
		switch s.Direction {
		case Desc:
			dir = "DESC"
		case Asc, "":
		default:
			return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid sort direction").
				WithDetails(map[string]any{"field": s.Field, "direction": s.Direction})
		}
		parts = append(parts, column+" "+dir)
	}
	return strings.Join(parts, ", "), nil
}

// Apply adds the spec's filters and ordering to a gorm query.
func Apply(db *gorm.DB, spec Spec, fields Fields, fallbackOrder string) (*gorm.DB, error) {
	where, args, err := Build(spec, fields)
	if err != nil {
		return nil, err
	}
	if where != "" {
		db = db.Where(where, args...)
	}
	order, err := OrderBy(spec, fields, fallbackOrder)
	if err != nil {
		return nil, err
	}
	if order != "" {
		db = db.Order(order)
	}
	return db, nil
}

func asSlice(value any) ([]any, bool) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func invalidField(field string, fields Fields) *pkgerrors.Error {
	allowed := make([]string, 0, len(fields))
	for name := range fields {
		allowed = append(allowed, name)
	}
	sort.Strings(allowed)
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown filter field").
		WithDetails(map[string]any{"field": field, "allowed": allowed})
}

func invalidValue(f Filter, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).
		WithDetails(map[string]any{"field": f.Field, "operator": f.Operator})
}
