// Package research runs the research pipeline: plan, search, classify the
// hits, fetch and distill the relevant ones in parallel under a deadline,
// then synthesize an answer with a derived confidence.
package research

import (
	"errors"
	"fmt"
	"time"
)

// Stage names a pipeline state. Every transition appends a Step.
type Stage string

const (
	StagePlanning     Stage = "planning"
	StageSearching    Stage = "searching"
	StageClassifying  Stage = "classifying"
	StageExtracting   Stage = "extracting"
	StageSynthesizing Stage = "synthesizing"
	StageDone         Stage = "done"
	StageFailed       Stage = "error"
)

// StepStatus is the lifecycle of one Step.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
	StatusError     StepStatus = "error"
)

// Step is one entry of the run log. A step is appended when its stage
// starts and updated once when it finishes; earlier steps never change.
type Step struct {
	Name        Stage          `json:"name"`
	Status      StepStatus     `json:"status"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// SourceKind is how a search hit will be retrieved.
type SourceKind string

const (
	KindWebPage      SourceKind = "webPage"
	KindDocument     SourceKind = "document"
	KindNonFetchable SourceKind = "nonFetchable"
)

// SourceStatus is what happened to one search hit.
type SourceStatus string

const (
	SourceDropped    SourceStatus = "dropped"    // not fetchable
	SourceSkipped    SourceStatus = "skipped"    // over the per-kind cap
	SourceFailed     SourceStatus = "failed"     // fetch or extraction failed
	SourceIrrelevant SourceStatus = "irrelevant" // relevance check said no
	SourceRelevant   SourceStatus = "relevant"   // contributed findings
	SourceTimedOut   SourceStatus = "timeout"    // still running at the extraction deadline
)

// SourceReport records the fate of one search hit.
type SourceReport struct {
	URL    string       `json:"url"`
	Title  string       `json:"title,omitempty"`
	Kind   SourceKind   `json:"kind"`
	Status SourceStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// Finding origins.
const (
	OriginWeb      = "web"
	OriginDocument = "document"
	OriginMemory   = "memory"
)

// Finding is one distilled fact.
type Finding struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
	Origin string `json:"origin"`
}

// PipelineRun is the complete record of one research run.
type PipelineRun struct {
	ID              string         `json:"id"`
	Query           string         `json:"query"`
	Plan            string         `json:"plan,omitempty"`
	Steps           []Step         `json:"steps"`
	Sources         []SourceReport `json:"sources"`
	Findings        []Finding      `json:"findings"`
	Synthesis       string         `json:"synthesis"`
	Confidence      float64        `json:"confidence"`
	RelevantSources int            `json:"relevant_sources"`
	DroppedEvents   int            `json:"dropped_events,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Duration        time.Duration  `json:"duration"`
}

// Result is the terminal value of Stream.
type Result struct {
	Run *PipelineRun
	Err error
}

var (
	// ErrStageFatal marks a failure that ends the run.
	ErrStageFatal = errors.New("research: fatal stage failure")
	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("research: empty query")
)

// StageError is the run-level error returned when a stage cannot degrade.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("research %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{ErrStageFatal, e.Err} }
