package parser

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level shape of an HCL definition file:
//
//	workflow "daily" {
//	  task "collect" {
//	    type   = "feed_collection"
//	    params = { feeds = ["https://example.com/rss"] }
//	  }
//	}
type hclFile struct {
	Workflows []*hclWorkflow `hcl:"workflow,block"`
}

type hclWorkflow struct {
	Name  string     `hcl:"name,label"`
	Tasks []*hclTask `hcl:"task,block"`
}

type hclTask struct {
	Name        string    `hcl:"name,label"`
	TaskType    string    `hcl:"type"`
	DependsOn   []string  `hcl:"depends_on,optional"`
	HumanReview bool      `hcl:"human_review,optional"`
	Timeout     string    `hcl:"timeout,optional"`
	MaxRetries  *int      `hcl:"max_retries,optional"`
	Params      cty.Value `hcl:"params,optional"`
	LLMConfig   cty.Value `hcl:"llm_config,optional"`
}

type hclDecoder struct{}

func (hclDecoder) Decode(filename string, data []byte) (map[string][]rawTask, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	out := make(map[string][]rawTask, len(parsed.Workflows))
	for _, wf := range parsed.Workflows {
		if _, dup := out[wf.Name]; dup {
			return nil, fmt.Errorf("%s: workflow %q declared twice", filename, wf.Name)
		}
		tasks := make([]rawTask, 0, len(wf.Tasks))
		for _, t := range wf.Tasks {
			params, err := objectToMap(t.Params)
			if err != nil {
				return nil, fmt.Errorf("%s: task %q params: %w", filename, t.Name, err)
			}
			llm, err := objectToMap(t.LLMConfig)
			if err != nil {
				return nil, fmt.Errorf("%s: task %q llm_config: %w", filename, t.Name, err)
			}
			tasks = append(tasks, rawTask{
				Name:        t.Name,
				TaskType:    t.TaskType,
				DependsOn:   t.DependsOn,
				Params:      params,
				HumanReview: t.HumanReview,
				LLM:         llm,
				Timeout:     t.Timeout,
				MaxRetries:  t.MaxRetries,
			})
		}
		out[wf.Name] = tasks
	}
	return out, nil
}

func objectToMap(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	converted, err := fromCty(v)
	if err != nil {
		return nil, err
	}
	m, ok := converted.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be an object, got %s", v.Type().FriendlyName())
	}
	return m, nil
}

// fromCty converts a cty value into the plain Go values a YAML decoder would
// produce, so both formats yield identical specs. Integral numbers become int.
func fromCty(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	ty := v.Type()
	switch {
	case ty.Equals(cty.String):
		return v.AsString(), nil
	case ty.Equals(cty.Bool):
		return v.True(), nil
	case ty.Equals(cty.Number):
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == 0 {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsListType(), ty.IsTupleType(), ty.IsSetType():
		var out []any
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			item, err := fromCty(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case ty.IsMapType(), ty.IsObjectType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			item, err := fromCty(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = item
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
