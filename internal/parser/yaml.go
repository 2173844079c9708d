package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlFile is the top-level shape of a YAML definition file:
//
//	workflows:
//	  daily:
//	    tasks:
//	      - name: collect
//	        task_type: feed_collection
type yamlFile struct {
	Workflows map[string]yamlWorkflow `yaml:"workflows"`
}

type yamlWorkflow struct {
	Tasks []yamlTask `yaml:"tasks"`
}

type yamlTask struct {
	Name        string         `yaml:"name"`
	TaskType    string         `yaml:"task_type"`
	DependsOn   []string       `yaml:"depends_on"`
	Params      map[string]any `yaml:"params"`
	HumanReview bool           `yaml:"human_review"`
	LLMConfig   map[string]any `yaml:"llm_config"`
	Timeout     string         `yaml:"timeout"`
	MaxRetries  *int           `yaml:"max_retries"`
}

type yamlDecoder struct{}

func (yamlDecoder) Decode(filename string, data []byte) (map[string][]rawTask, error) {
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", filename, err)
	}
	if file.Workflows == nil {
		return nil, fmt.Errorf("%s: no workflows section", filename)
	}

	out := make(map[string][]rawTask, len(file.Workflows))
	for name, wf := range file.Workflows {
		tasks := make([]rawTask, 0, len(wf.Tasks))
		for _, t := range wf.Tasks {
			tasks = append(tasks, rawTask{
				Name:        t.Name,
				TaskType:    t.TaskType,
				DependsOn:   t.DependsOn,
				Params:      t.Params,
				HumanReview: t.HumanReview,
				LLM:         t.LLMConfig,
				Timeout:     t.Timeout,
				MaxRetries:  t.MaxRetries,
			})
		}
		out[name] = tasks
	}
	return out, nil
}
