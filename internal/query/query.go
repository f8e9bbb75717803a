// Package query selects converted records with CEL expressions.
//
// Expressions see two variables: record, the converted record as a
// map(string, dyn), and kind, the record's variant name (its type entry).
// For example:
//
//	kind == "Filter" && record.action == "block"
//	has(record.options) && "domain" in record.options
package query

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/cel-go/cel"

	"github.com/xxxbrian/filterdict/internal/normalizer"
)

// Selector is a compiled boolean expression. It is safe for concurrent use.
type Selector struct {
	source  string
	program cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("kind", cel.StringType),
	)
}

// Compile compiles expr, which must evaluate to a bool.
func Compile(expr string) (*Selector, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}

	return &Selector{source: expr, program: prog}, nil
}

// String returns the source expression.
func (s *Selector) String() string {
	return s.source
}

// Match evaluates the expression against one record. Text and UTF-8 bytes are
// both presented to the expression as strings.
func (s *Selector) Match(m normalizer.Map) (bool, error) {
	record, _ := activationValue(m).(map[string]any)
	kind, _ := record["type"].(string)

	out, _, err := s.program.Eval(map[string]any{
		"record": record,
		"kind":   kind,
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", s.source, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: result is %T, not bool", s.source, out.Value())
	}
	return matched, nil
}

// Filter returns the maps that match, in order. A nil selector keeps all.
func (s *Selector) Filter(maps []normalizer.Map) ([]normalizer.Map, error) {
	if s == nil {
		return maps, nil
	}
	kept := make([]normalizer.Map, 0, len(maps))
	for _, m := range maps {
		ok, err := s.Match(m)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

func activationValue(v normalizer.Value) any {
	switch v := v.(type) {
	case normalizer.Map:
		out := make(map[string]any, v.Len())
		for _, e := range v.Entries() {
			k, _ := activationValue(e.Key).(string)
			out[k] = activationValue(e.Value)
		}
		return out
	case normalizer.List:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = activationValue(item)
		}
		return out
	case normalizer.Bytes:
		if utf8.Valid(v) {
			return string(v)
		}
		return []byte(v)
	default:
		return normalizer.Plain(v)
	}
}
