// Package parser loads workflow definition files (YAML or HCL) into
// WorkflowSpecs and validates them before any task runs.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harrison/briefflow/internal/models"
)

// Format represents the format of a workflow definition file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatYAML represents a YAML (.yaml, .yml) definition file
	FormatYAML
	// FormatHCL represents an HCL (.hcl) definition file
	FormatHCL
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatHCL:
		return "hcl"
	default:
		return "unknown"
	}
}

// DetectFormat detects the definition format from the file extension.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".hcl":
		return FormatHCL
	default:
		return FormatUnknown
	}
}

// decoder turns the raw bytes of a definition file into task declarations.
type decoder interface {
	Decode(filename string, data []byte) (map[string][]rawTask, error)
}

func newDecoder(format Format) (decoder, error) {
	switch format {
	case FormatYAML:
		return yamlDecoder{}, nil
	case FormatHCL:
		return hclDecoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// rawTask is a task entry as written in a definition file, before timeouts
// are parsed and the workflow is validated.
type rawTask struct {
	Name        string
	TaskType    string
	DependsOn   []string
	Params      map[string]any
	HumanReview bool
	LLM         map[string]any
	Timeout     string
	MaxRetries  *int
}

// Definitions is the set of workflows declared by one definition file.
type Definitions struct {
	Path      string
	Format    Format
	workflows map[string][]rawTask
}

// LoadFile reads and decodes a workflow definition file. It performs no
// validation beyond the file's own syntax.
func LoadFile(path string) (*Definitions, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%s: unsupported format (want .yaml, .yml or .hcl)", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	return Parse(path, format, data)
}

// Parse decodes definition bytes of the given format. path is used for
// diagnostics only.
func Parse(path string, format Format, data []byte) (*Definitions, error) {
	dec, err := newDecoder(format)
	if err != nil {
		return nil, err
	}
	workflows, err := dec.Decode(path, data)
	if err != nil {
		return nil, err
	}
	return &Definitions{Path: path, Format: format, workflows: workflows}, nil
}

// Names returns the declared workflow names, sorted.
func (d *Definitions) Names() []string {
	names := make([]string, 0, len(d.workflows))
	for name := range d.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a workflow is declared.
func (d *Definitions) Has(name string) bool {
	_, ok := d.workflows[name]
	return ok
}

// Spec builds the WorkflowSpec for a workflow without validating it. Fields
// that cannot be converted (a malformed timeout) are reported as issues.
func (d *Definitions) Spec(name string) (*models.WorkflowSpec, []Issue, error) {
	raw, ok := d.workflows[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q in %s", ErrWorkflowNotFound, name, d.Path)
	}

	var issues []Issue
	specs := make([]models.TaskSpec, 0, len(raw))
	for _, rt := range raw {
		ts := models.TaskSpec{
			Name:        rt.Name,
			TaskType:    rt.TaskType,
			DependsOn:   rt.DependsOn,
			Params:      rt.Params,
			HumanReview: rt.HumanReview,
			LLM:         rt.LLM,
			MaxRetries:  rt.MaxRetries,
		}
		if rt.Timeout != "" {
			timeout, err := time.ParseDuration(rt.Timeout)
			if err != nil {
				issues = append(issues, Issue{Task: rt.Name, Message: fmt.Sprintf("invalid timeout %q", rt.Timeout)})
			} else {
				ts.Timeout = timeout
			}
		}
		specs = append(specs, ts)
	}
	return models.NewWorkflowSpec(name, specs), issues, nil
}

// Workflow builds and validates one workflow. It returns a *ValidationError
// listing every problem when the definition is not runnable.
func (d *Definitions) Workflow(name string, types TypeChecker) (*models.WorkflowSpec, error) {
	spec, issues, err := d.Spec(name)
	if err != nil {
		return nil, err
	}
	issues = append(issues, Check(spec, types)...)
	if len(issues) > 0 {
		return nil, &ValidationError{Workflow: name, Issues: issues}
	}
	return spec, nil
}
