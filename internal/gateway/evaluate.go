package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Metric types accepted by evaluate.
const (
	MetricGEval         = "g_eval"
	MetricHallucination = "hallucination"
)

// DefaultThreshold applies when a request names none.
const DefaultThreshold = 0.5

// StringList accepts a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = nil
		} else {
			*l = StringList{s}
		}
		return nil
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.New("expected a string or an array of strings")
	}
	*l = items
	return nil
}

// nonEmpty drops blank entries.
func (l StringList) nonEmpty() []string {
	out := make([]string, 0, len(l))
	for _, s := range l {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EvaluateInput is the metric-specific part of an evaluate request.
type EvaluateInput struct {
	MetricType         string     `json:"metricType"`
	ActualOutput       string     `json:"actualOutput"`
	ExpectedOutput     string     `json:"expectedOutput,omitempty"`
	Query              string     `json:"query,omitempty"`
	TaskIntroduction   string     `json:"taskIntroduction,omitempty"`
	EvaluationCriteria string     `json:"evaluationCriteria,omitempty"`
	EvaluationSteps    StringList `json:"evaluationSteps,omitempty"`
	Context            StringList `json:"context,omitempty"`
	Model              string     `json:"model,omitempty"`
	Temperature        *float64   `json:"temperature,omitempty"`
	MaxTokens          *int       `json:"maxTokens,omitempty"`
	Threshold          *float64   `json:"threshold,omitempty"`
}

func (in *EvaluateInput) threshold() float64 {
	if in.Threshold != nil {
		return *in.Threshold
	}
	return DefaultThreshold
}

// MetricDescriptor is one entry of the metric catalog.
type MetricDescriptor struct {
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	RequiredFields []string `json:"requiredFields"`
	OptionalFields []string `json:"optionalFields"`
}

// Verdict is a parsed metric result.
type Verdict struct {
	Score          float64 // normalized to 0..1
	RawScore       float64 // as the judge model reported it
	Reason         string
	Passed         bool
	Contradictions []string
}

type metric struct {
	descriptor MetricDescriptor
	required   func(in *EvaluateInput) []string
	prompt     func(in *EvaluateInput) string
	verdict    func(j judgement, threshold float64) *Verdict
}

var metricTable = []*metric{
	{
		descriptor: MetricDescriptor{
			Type:           MetricGEval,
			Name:           "G-Eval",
			Description:    "Scores an output against custom criteria using chain-of-thought evaluation steps",
			RequiredFields: []string{"providerId", "metricType", "actualOutput", "taskIntroduction", "evaluationCriteria"},
			OptionalFields: []string{"expectedOutput", "query", "evaluationSteps", "model", "temperature", "threshold"},
		},
		required: func(in *EvaluateInput) []string {
			var missing []string
			if strings.TrimSpace(in.TaskIntroduction) == "" {
				missing = append(missing, "taskIntroduction")
			}
			if strings.TrimSpace(in.EvaluationCriteria) == "" {
				missing = append(missing, "evaluationCriteria")
			}
			return missing
		},
		prompt:  gEvalPrompt,
		verdict: gEvalVerdict,
	},
	{
		descriptor: MetricDescriptor{
			Type:           MetricHallucination,
			Name:           "Hallucination Detection",
			Description:    "Measures how much of an output contradicts the provided context",
			RequiredFields: []string{"providerId", "metricType", "actualOutput", "context"},
			OptionalFields: []string{"query", "model", "temperature", "threshold"},
		},
		required: func(in *EvaluateInput) []string {
			if len(in.Context.nonEmpty()) == 0 {
				return []string{"context"}
			}
			return nil
		},
		prompt:  hallucinationPrompt,
		verdict: hallucinationVerdict,
	},
}

// Catalog lists the supported metrics in a stable order.
func Catalog() []MetricDescriptor {
	out := make([]MetricDescriptor, len(metricTable))
	for i, m := range metricTable {
		out[i] = m.descriptor
	}
	return out
}

func lookupMetric(metricType string) (*metric, bool) {
	for _, m := range metricTable {
		if m.descriptor.Type == metricType {
			return m, true
		}
	}
	return nil, false
}

// ValidateEvaluate checks an evaluate request before any provider lookup.
func ValidateEvaluate(providerID string, in *EvaluateInput) error {
	var missing []string
	if strings.TrimSpace(providerID) == "" {
		missing = append(missing, "providerId")
	}
	if strings.TrimSpace(in.MetricType) == "" {
		missing = append(missing, "metricType")
	}
	if strings.TrimSpace(in.ActualOutput) == "" {
		missing = append(missing, "actualOutput")
	}
	if len(missing) > 0 {
		return missingFields(missing)
	}

	m, ok := lookupMetric(in.MetricType)
	if !ok {
		return &ValidationError{Message: fmt.Sprintf(
			"Unsupported metric type: %s. Supported types: %s, %s", in.MetricType, MetricGEval, MetricHallucination)}
	}
	if missing := m.required(in); len(missing) > 0 {
		return missingFields(missing)
	}
	if in.Threshold != nil && (*in.Threshold < 0 || *in.Threshold > 1) {
		return &ValidationError{Message: "threshold must be between 0 and 1"}
	}
	return nil
}

func gEvalPrompt(in *EvaluateInput) string {
	var b strings.Builder

	b.WriteString("You are an evaluator. ")
	b.WriteString(strings.TrimSpace(in.TaskIntroduction))
	b.WriteString("\n\nEvaluation criteria:\n")
	b.WriteString(strings.TrimSpace(in.EvaluationCriteria))
	b.WriteString("\n\n")

	if steps := in.EvaluationSteps.nonEmpty(); len(steps) > 0 {
		b.WriteString("Evaluation steps:\n")
		for i, step := range steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	} else {
		b.WriteString("First write out the evaluation steps implied by the criteria, then follow them.\n")
	}

	if q := strings.TrimSpace(in.Query); q != "" {
		fmt.Fprintf(&b, "\nInput:\n%s\n", q)
	}
	if e := strings.TrimSpace(in.ExpectedOutput); e != "" {
		fmt.Fprintf(&b, "\nExpected output:\n%s\n", e)
	}
	fmt.Fprintf(&b, "\nActual output:\n%s\n", strings.TrimSpace(in.ActualOutput))

	b.WriteString("\nScore the actual output from 1 (worst) to 10 (best). ")
	b.WriteString(`Respond only with JSON: {"score": <1-10>, "reason": "<one or two sentences>"}`)
	return b.String()
}

func hallucinationPrompt(in *EvaluateInput) string {
	var b strings.Builder

	b.WriteString("You are checking an output for hallucinations against the given context.\n\nContext:\n")
	for i, c := range in.Context.nonEmpty() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}

	if q := strings.TrimSpace(in.Query); q != "" {
		fmt.Fprintf(&b, "\nInput:\n%s\n", q)
	}
	fmt.Fprintf(&b, "\nActual output:\n%s\n", strings.TrimSpace(in.ActualOutput))

	b.WriteString("\nFor each context item decide whether the output contradicts it. ")
	b.WriteString("The score is the fraction of context items contradicted (0 means none, 1 means all). ")
	b.WriteString(`Respond only with JSON: {"score": <0-1>, "reason": "<explanation>", "contradictions": ["<contradicted statement>", ...]}`)
	return b.String()
}

func gEvalVerdict(j judgement, threshold float64) *Verdict {
	raw := clamp(j.score, 0, 10)
	score := raw / 10
	return &Verdict{
		Score:    score,
		RawScore: j.score,
		Reason:   j.reason,
		Passed:   score >= threshold,
	}
}

func hallucinationVerdict(j judgement, threshold float64) *Verdict {
	score := clamp(j.score, 0, 1)
	return &Verdict{
		Score:          score,
		RawScore:       j.score,
		Reason:         j.reason,
		Passed:         score <= threshold,
		Contradictions: j.contradictions,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ErrUnparseableVerdict is returned when a judge response carries no score.
var ErrUnparseableVerdict = errors.New("Failed to parse evaluation response")

// judgement is what the judge model said, before scaling.
type judgement struct {
	score          float64
	reason         string
	contradictions []string
}

var scorePattern = regexp.MustCompile(`(?i)"?score"?\s*[:=]\s*(-?\d+(?:\.\d+)?)`)

// parseJudgement takes the first JSON object in the text that has a numeric
// score, falling back to a "score: n" pattern anywhere in the text.
func parseJudgement(text string) (judgement, error) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var obj struct {
			Score          json.RawMessage `json:"score"`
			Reason         string          `json:"reason"`
			Contradictions StringList      `json:"contradictions"`
		}
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&obj); err == nil {
			if score, ok := parseScore(obj.Score); ok {
				return judgement{
					score:          score,
					reason:         strings.TrimSpace(obj.Reason),
					contradictions: obj.Contradictions.nonEmpty(),
				}, nil
			}
		}

		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}

	if m := scorePattern.FindStringSubmatch(text); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			return judgement{score: score, reason: strings.TrimSpace(text)}, nil
		}
	}

	return judgement{}, ErrUnparseableVerdict
}

func parseScore(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
