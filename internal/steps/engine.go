package steps

import "strings"

// Per-stage statuses. A stage starts unset and only moves forward:
// unset -> start -> end, or -> error. Log lines are append-only and
// chronological, so the last marker seen for a stage wins.
const (
	StatusUnset = "no"
	StatusStart = "start"
	StatusEnd   = "end"
	StatusError = "error"
)

// Rule maps a substring marker in a worker log line to a stage status.
// The table is ordered; the first rule matching a line is the one
// applied for that line.
type Rule struct {
	Marker string
	Stage  string
	Status string
}

// Snapshot is the per-stage projection of a job's log stream. It is
// recomputed on every status read and never persisted.
type Snapshot map[string]string

// NewSnapshot returns a fresh snapshot with every stage unset.
func NewSnapshot(stages []string) Snapshot {
	s := make(Snapshot, len(stages))
	for _, stage := range stages {
		s[stage] = StatusUnset
	}
	return s
}

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Project scans logLines front to back against the rule table and folds
// the matches over prev. Stages not mentioned in any line keep their
// previous value. Pure and deterministic: projecting the same lines over
// the same snapshot twice yields identical results.
func Project(logLines []string, prev Snapshot, rules []Rule) Snapshot {
	out := prev.clone()
	for _, line := range logLines {
		for _, r := range rules {
			if strings.Contains(line, r.Marker) {
				out[r.Stage] = r.Status
				break
			}
		}
	}
	return out
}

// emailSentMarker is emitted by workers after the notification goes out;
// there is no matching start marker for the email stage.
const emailSentMarker = "email notification sent to"

// pipelineStages is the stage order for the primary simulation pipeline
// (classic, auto, sans, alphafold variants).
var pipelineStages = []string{
	"pdb2crd", "pae", "autorg", "minimize", "initfoxs", "heat",
	"md", "dcd2pdb", "foxs", "multifoxs", "results", "email",
}

// scoperStages is the stage order for the scoper pipeline's queue log.
var scoperStages = []string{"scoper", "results", "email"}

func buildRules(stages []string) []Rule {
	var rules []Rule
	for _, verb := range []string{StatusStart, StatusEnd, StatusError} {
		for _, stage := range stages {
			if stage == "email" {
				continue
			}
			rules = append(rules, Rule{
				Marker: verb + " " + stage,
				Stage:  stage,
				Status: verb,
			})
		}
	}
	rules = append(rules, Rule{Marker: emailSentMarker, Stage: "email", Status: StatusEnd})
	return rules
}

var (
	pipelineRules = buildRules(pipelineStages)
	scoperRules   = buildRules(scoperStages)
)

// PipelineStages returns the primary pipeline stage order.
func PipelineStages() []string {
	out := make([]string, len(pipelineStages))
	copy(out, pipelineStages)
	return out
}

// ProjectPipeline projects a primary-queue log stream.
func ProjectPipeline(logLines []string, prev Snapshot) Snapshot {
	if prev == nil {
		prev = NewSnapshot(pipelineStages)
	}
	return Project(logLines, prev, pipelineRules)
}

// ProjectScoper projects a scoper-queue log stream.
func ProjectScoper(logLines []string, prev Snapshot) Snapshot {
	if prev == nil {
		prev = NewSnapshot(scoperStages)
	}
	return Project(logLines, prev, scoperRules)
}

// LastLine returns the most recent log line, the live "what is it doing
// right now" message shown to users.
func LastLine(logLines []string) string {
	if len(logLines) == 0 {
		return ""
	}
	return logLines[len(logLines)-1]
}
