// Package parser turns workflow and action definition files into documents
// listing every call-bearing `uses:` field with its source position.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml/ast"
	yamlparser "github.com/goccy/go-yaml/parser"

	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var log = logger.New("parser:document")

// Kind tells workflows and actions apart.
type Kind string

const (
	KindWorkflow Kind = "workflow"
	KindAction   Kind = "action"
	KindUnknown  Kind = "unknown"
)

// CallExpression is one raw `uses:` value and where it was found.
type CallExpression struct {
	Raw      string
	Location diagnostic.Location
	// Field is the YAML path of the value, e.g. "jobs.build.steps[2].uses".
	Field string
	JobID string
	// StepIndex is -1 for job-level reusable workflow calls and for docker images.
	StepIndex int
	StepName  string
}

// Job is a workflow job.
type Job struct {
	ID       string
	Location diagnostic.Location
	Steps    int
}

// Document is a parsed definition file.
type Document struct {
	Path  string
	Kind  Kind
	Name  string
	Jobs  []Job
	Calls []CallExpression
}

// ParseDocument parses content read from path. Only syntax errors fail; the
// error is then a *ParseError. Unknown keys are ignored and every document of
// a multi-document stream is scanned.
func ParseDocument(path string, content []byte) (*Document, error) {
	log.Printf("Parsing document: path=%s, size=%d", path, len(content))

	file, err := yamlparser.ParseBytes(content, 0)
	if err != nil {
		return nil, newParseError(path, err)
	}

	doc := &Document{Path: path, Kind: KindUnknown}
	w := walker{doc: doc}
	for _, d := range file.Docs {
		if d == nil || d.Body == nil {
			continue
		}
		w.anchors = collectAnchors(d.Body)
		w.walkRoot(d.Body)
	}

	if isActionFileName(path) && doc.Kind == KindUnknown {
		doc.Kind = KindAction
	}

	log.Printf("Parsed document: path=%s, kind=%s, jobs=%d, calls=%d", path, doc.Kind, len(doc.Jobs), len(doc.Calls))
	return doc, nil
}

func isActionFileName(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return base == "action.yml" || base == "action.yaml"
}

type walker struct {
	doc     *Document
	anchors anchorTable
}

func (w *walker) walkRoot(body ast.Node) {
	top := w.mappingValues(body)
	jobs := lookup(top, "jobs")
	runs := lookup(top, "runs")

	if name := lookup(top, "name"); name != nil && w.doc.Name == "" {
		w.doc.Name, _ = w.scalarString(name.Value)
	}

	switch {
	case jobs != nil && !isActionFileName(w.doc.Path):
		w.doc.Kind = KindWorkflow
		w.walkJobs(jobs.Value)
	case runs != nil:
		w.doc.Kind = KindAction
		w.walkRuns(runs.Value)
	}
}

func (w *walker) walkJobs(node ast.Node) {
	for _, jobEntry := range w.mappingValues(node) {
		id := keyString(jobEntry.Key)
		job := Job{ID: id, Location: w.location(jobEntry.Key)}
		fields := w.mappingValues(jobEntry.Value)

		if uses := lookup(fields, "uses"); uses != nil {
			w.addCall(uses, "jobs."+id+".uses", id, -1, "")
		}
		if steps := lookup(fields, "steps"); steps != nil {
			job.Steps = w.walkSteps(steps.Value, "jobs."+id+".steps", id)
		}
		w.doc.Jobs = append(w.doc.Jobs, job)
	}
}

func (w *walker) walkRuns(node ast.Node) {
	fields := w.mappingValues(node)
	if steps := lookup(fields, "steps"); steps != nil {
		w.walkSteps(steps.Value, "runs.steps", "")
	}
	if image := lookup(fields, "image"); image != nil {
		if raw, ok := w.scalarString(image.Value); ok && strings.HasPrefix(raw, "docker://") {
			w.addCall(image, "runs.image", "", -1, "")
		}
	}
}

// walkSteps records the `uses` of every step and returns the step count.
func (w *walker) walkSteps(node ast.Node, field, jobID string) int {
	seq, ok := w.unwrap(node).(*ast.SequenceNode)
	if !ok {
		return 0
	}
	for i, step := range seq.Values {
		fields := w.mappingValues(step)
		uses := lookup(fields, "uses")
		if uses == nil {
			continue
		}
		var name string
		if n := lookup(fields, "name"); n != nil {
			name, _ = w.scalarString(n.Value)
		} else if n := lookup(fields, "id"); n != nil {
			name, _ = w.scalarString(n.Value)
		}
		w.addCall(uses, fmt.Sprintf("%s[%d].uses", field, i), jobID, i, name)
	}
	return len(seq.Values)
}

func (w *walker) addCall(entry *ast.MappingValueNode, field, jobID string, stepIndex int, stepName string) {
	raw, ok := w.scalarString(entry.Value)
	if !ok {
		raw = strings.TrimSpace(entry.Value.String())
	}
	loc := w.location(entry.Value)
	if loc.Line == 0 {
		loc = w.location(entry.Key)
	}
	w.doc.Calls = append(w.doc.Calls, CallExpression{
		Raw:       raw,
		Location:  loc,
		Field:     field,
		JobID:     jobID,
		StepIndex: stepIndex,
		StepName:  stepName,
	})
}

func (w *walker) location(node ast.Node) diagnostic.Location {
	loc := diagnostic.Location{File: w.doc.Path}
	if node == nil {
		return loc
	}
	if tk := node.GetToken(); tk != nil && tk.Position != nil {
		loc.Line = tk.Position.Line
		loc.Column = tk.Position.Column
	}
	return loc
}
