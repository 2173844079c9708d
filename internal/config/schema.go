package config

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ParamType is the declared type of a task parameter.
type ParamType string

// Parameter types
const (
	TypeString     ParamType = "string"
	TypeInt        ParamType = "int"
	TypeFloat      ParamType = "float"
	TypeBool       ParamType = "bool"
	TypeDuration   ParamType = "duration"
	TypeStringList ParamType = "list(string)"
	TypeList       ParamType = "list"
	TypeMap        ParamType = "map"
	TypeAny        ParamType = "any"
)

// ParamSpec declares one parameter of a task type.
type ParamSpec struct {
	Key         string // dotted path, e.g. "llm.model"
	Type        ParamType
	Required    bool
	Default     any
	Min         *float64
	Max         *float64
	Enum        []string
	Description string
}

// TypeSchema is the parameter schema of a task type.
type TypeSchema struct {
	Params []ParamSpec
}

// Bound is a helper for ParamSpec.Min/Max literals.
func Bound(v float64) *float64 { return &v }

// Defaults returns the default layer values of the schema.
func (s TypeSchema) Defaults() map[string]any {
	out := make(map[string]any)
	for _, p := range s.Params {
		if p.Default != nil {
			setPath(out, p.Key, cloneValue(p.Default))
		}
	}
	return out
}

// ConfigError reports parameters that are missing or invalid after all layers
// have been merged.
type ConfigError struct {
	Task     string
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("task %s: invalid configuration: %s", e.Task, strings.Join(e.Problems, "; "))
}

// Apply checks params against the schema and converts declared keys to their Go
// types in place. Undeclared keys pass through untouched. Every problem found is
// returned, sorted.
func (s TypeSchema) Apply(params map[string]any) []string {
	var problems []string
	for _, p := range s.Params {
		raw, ok := Lookup(params, p.Key)
		if !ok || raw == nil {
			if p.Required {
				problems = append(problems, fmt.Sprintf("missing required key %q", p.Key))
			}
			continue
		}

		value, err := p.convert(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("key %q: %v", p.Key, err))
			continue
		}
		if err := p.check(value); err != nil {
			problems = append(problems, fmt.Sprintf("key %q: %v", p.Key, err))
			continue
		}
		setPath(params, p.Key, value)
	}
	sort.Strings(problems)
	return problems
}

// convert coerces a raw layer value into the declared type using cty conversion
// rules, so "5" becomes 5 and "true" becomes true.
func (p ParamSpec) convert(raw any) (any, error) {
	if p.Type == TypeAny || p.Type == "" {
		return raw, nil
	}

	if p.Type == TypeStringList {
		if s, ok := raw.(string); ok {
			raw = splitList(s)
		}
	}
	if p.Type == TypeDuration {
		switch v := raw.(type) {
		case time.Duration:
			return v, nil
		case int, int64, float64:
			// bare numbers are seconds
			num, err := toCty(v)
			if err != nil {
				return nil, err
			}
			f, _ := num.AsBigFloat().Float64()
			return time.Duration(f * float64(time.Second)), nil
		}
	}

	val, err := toCty(raw)
	if err != nil {
		return nil, err
	}

	want, err := p.ctyType()
	if err != nil {
		return nil, err
	}
	if want == cty.DynamicPseudoType {
		// structural types only need the right shape
		ty := val.Type()
		switch p.Type {
		case TypeList:
			if !ty.IsListType() && !ty.IsTupleType() {
				return nil, fmt.Errorf("must be a list, got %s", ty.FriendlyName())
			}
		case TypeMap:
			if !ty.IsObjectType() && !ty.IsMapType() {
				return nil, fmt.Errorf("must be a map, got %s", ty.FriendlyName())
			}
		}
		return raw, nil
	}

	converted, err := convert.Convert(val, want)
	if err != nil {
		return nil, fmt.Errorf("must be %s: %v", p.Type, err)
	}

	switch p.Type {
	case TypeString:
		return converted.AsString(), nil
	case TypeBool:
		return converted.True(), nil
	case TypeInt:
		bf := converted.AsBigFloat()
		if !bf.IsInt() {
			return nil, fmt.Errorf("must be an integer, got %s", bf.Text('g', -1))
		}
		i, _ := bf.Int64()
		return int(i), nil
	case TypeFloat:
		f, _ := converted.AsBigFloat().Float64()
		return f, nil
	case TypeDuration:
		d, err := time.ParseDuration(converted.AsString())
		if err != nil {
			return nil, fmt.Errorf("must be a duration: %v", err)
		}
		return d, nil
	case TypeStringList:
		out := make([]string, 0, converted.LengthInt())
		for it := converted.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, ev.AsString())
		}
		return out, nil
	}
	return raw, nil
}

func (p ParamSpec) ctyType() (cty.Type, error) {
	switch p.Type {
	case TypeString, TypeDuration:
		return cty.String, nil
	case TypeInt, TypeFloat:
		return cty.Number, nil
	case TypeBool:
		return cty.Bool, nil
	case TypeStringList:
		return cty.List(cty.String), nil
	case TypeList, TypeMap:
		return cty.DynamicPseudoType, nil
	default:
		return cty.NilType, fmt.Errorf("unknown parameter type %q", p.Type)
	}
}

func (p ParamSpec) check(value any) error {
	var num *float64
	switch v := value.(type) {
	case int:
		f := float64(v)
		num = &f
	case float64:
		num = &v
	}
	if num != nil {
		if p.Min != nil && *num < *p.Min {
			return fmt.Errorf("%v is below minimum %v", value, *p.Min)
		}
		if p.Max != nil && *num > *p.Max {
			return fmt.Errorf("%v is above maximum %v", value, *p.Max)
		}
	}
	if len(p.Enum) > 0 {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("must be one of %s", strings.Join(p.Enum, ", "))
		}
		for _, e := range p.Enum {
			if s == e {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %s", s, strings.Join(p.Enum, ", "))
	}
	return nil
}

func splitList(s string) []any {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return []any{}
	}
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

// toCty maps decoded YAML/JSON values onto cty values.
func toCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(val), nil
	case bool:
		return cty.BoolVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int32:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case uint64:
		return cty.NumberUIntVal(val), nil
	case float32:
		return cty.NumberFloatVal(float64(val)), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case *big.Float:
		return cty.NumberVal(val), nil
	case time.Duration:
		return cty.StringVal(val.String()), nil
	case []string:
		if len(val) == 0 {
			return cty.ListValEmpty(cty.String), nil
		}
		elems := make([]cty.Value, len(val))
		for i, s := range val {
			elems[i] = cty.StringVal(s)
		}
		return cty.ListVal(elems), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i := range val {
			ev, err := toCty(val[i])
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	}

	if m, ok := asMap(v); ok {
		if len(m) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(m))
		for k, item := range m {
			ev, err := toCty(item)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported value of type %T", v)
}
