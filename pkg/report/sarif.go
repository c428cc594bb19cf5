package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/rules"
)

const (
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
	sarifVersion = "2.1.0"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations"`
	Results     []sarifResult     `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version,omitempty"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool `json:"executionSuccessful"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex int             `json:"ruleIndex"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation *sarifPhysicalLocation `json:"physicalLocation,omitempty"`
	LogicalLocations []sarifLogicalLocation `json:"logicalLocations,omitempty"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

type sarifLogicalLocation struct {
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Kind               string `json:"kind"`
}

// SARIFReporter writes SARIF 2.1.0 for code scanning upload.
type SARIFReporter struct {
	w       io.Writer
	version string
}

// NewSARIFReporter creates a SARIFReporter; version is reported as the tool version.
func NewSARIFReporter(w io.Writer, version string) *SARIFReporter {
	return &SARIFReporter{w: w, version: version}
}

// Emit implements diagnostic.Reporter.
func (r *SARIFReporter) Emit(result *diagnostic.ScanResult) error {
	data, err := GenerateSARIF(result, r.version)
	if err != nil {
		return err
	}
	_, err = r.w.Write(append(data, '\n'))
	return err
}

// GenerateSARIF builds a SARIF document. Findings in local files carry a
// physical location relative to the scan root; findings inside remote
// definitions carry a logical location naming the remote document.
func GenerateSARIF(result *diagnostic.ScanResult, version string) ([]byte, error) {
	ruleIndex := make(map[string]int, len(rules.Registry))
	driverRules := make([]sarifRule, 0, len(rules.Registry))
	for i, rule := range rules.Registry {
		ruleIndex[rule.ID] = i
		driverRules = append(driverRules, sarifRule{
			ID:               rule.ID,
			ShortDescription: sarifMessage{Text: rule.Description},
			DefaultConfig:    sarifRuleDefaultConfig{Level: severityToLevel(rule.DefaultSeverity)},
		})
	}

	results := make([]sarifResult, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		results = append(results, sarifResult{
			RuleID:    d.RuleID,
			RuleIndex: ruleIndex[d.RuleID],
			Level:     severityToLevel(d.Severity),
			Message:   sarifMessage{Text: d.Message},
			Locations: []sarifLocation{diagnosticLocation(d.Location)},
		})
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           constants.CLIName,
				Version:        version,
				InformationURI: constants.InformationURI,
				Rules:          driverRules,
			}},
			Invocations: []sarifInvocation{{ExecutionSuccessful: !result.Incomplete}},
			Results:     results,
		}},
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SARIF report: %w", err)
	}
	return data, nil
}

func diagnosticLocation(loc diagnostic.Location) sarifLocation {
	if isRemoteDocument(loc.File) {
		return sarifLocation{LogicalLocations: []sarifLogicalLocation{{
			FullyQualifiedName: loc.String(),
			Kind:               "resource",
		}}}
	}

	physical := &sarifPhysicalLocation{
		ArtifactLocation: sarifArtifactLocation{URI: loc.File, URIBaseID: "%SRCROOT%"},
	}
	if loc.Line > 0 {
		physical.Region = &sarifRegion{StartLine: loc.Line, StartColumn: loc.Column}
	}
	return sarifLocation{PhysicalLocation: physical}
}

// isRemoteDocument reports whether file is the display path of a remote
// definition ("owner/repo/path@ref").
func isRemoteDocument(file string) bool {
	return strings.Contains(file, "@")
}

func severityToLevel(s diagnostic.Severity) string {
	switch s {
	case diagnostic.SeverityError:
		return "error"
	case diagnostic.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}
