// Package evaluation replays scripted questions through the assistant and
// checks the deterministic parts of each answer.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/assistant"
	"github.com/bank-assistant/backend/internal/embedding"
	"github.com/bank-assistant/backend/pkg/logger"
)

type Answerer interface {
	Answer(ctx context.Context, req assistant.Request) assistant.Response
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

// DatasetItem leaves a check out when its expectation is empty or nil.
type DatasetItem struct {
	Name                string `json:"name"`
	Question            string `json:"question"`
	CustomerID          int64  `json:"customer_id"`
	Language            string `json:"language"`
	ExpectedIntent      string `json:"expected_intent,omitempty"`
	ExpectedPreComputed string `json:"expected_pre_computed,omitempty"`
	ExpectTransactions  *bool  `json:"expect_transactions,omitempty"`
	AnswerContains      string `json:"answer_contains,omitempty"`
	GroundTruth         string `json:"ground_truth,omitempty"`
}

type ItemResult struct {
	Name             string   `json:"name"`
	Passed           bool     `json:"passed"`
	Failures         []string `json:"failures,omitempty"`
	Outcome          string   `json:"outcome"`
	Attempts         int      `json:"attempts"`
	CosineSimilarity float64  `json:"cosine_similarity,omitempty"`
	LatencyMS        int64    `json:"latency_ms"`
}

type Report struct {
	TotalQuestions      int            `json:"total_questions"`
	Passed              int            `json:"passed"`
	Failed              int            `json:"failed"`
	PassPercentage      float64        `json:"pass_percentage"`
	Outcomes            map[string]int `json:"outcomes"`
	AvgCosineSimilarity float64        `json:"avg_cosine_similarity"`
	Items               []ItemResult   `json:"items"`
}

type Evaluator struct {
	assistant Answerer
	embedder  embedding.Embedder
}

// NewEvaluator takes an optional embedder used to score answers against
// ground truth text.
func NewEvaluator(a Answerer, embedder embedding.Embedder) *Evaluator {
	return &Evaluator{assistant: a, embedder: embedder}
}

func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return ReadDataset(f)
}

func ReadDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	for i, item := range ds.Items {
		if item.Question == "" {
			return nil, fmt.Errorf("dataset item %d has no question", i)
		}
		if item.Name == "" {
			ds.Items[i].Name = fmt.Sprintf("item_%d", i+1)
		}
	}
	return &ds, nil
}

func (e *Evaluator) EvaluateItem(ctx context.Context, item DatasetItem) ItemResult {
	resp := e.assistant.Answer(ctx, assistant.Request{
		Question:   item.Question,
		CustomerID: item.CustomerID,
		Language:   item.Language,
	})

	result := ItemResult{
		Name:      item.Name,
		Outcome:   string(resp.Outcome),
		Attempts:  resp.Attempts,
		LatencyMS: resp.LatencyMS,
	}

	if item.ExpectedIntent != "" && string(resp.Decision.Intent) != item.ExpectedIntent {
		result.Failures = append(result.Failures, fmt.Sprintf("intent: want %q, got %q", item.ExpectedIntent, resp.Decision.Intent))
	}
	if item.ExpectedPreComputed != "" && resp.PreComputed != item.ExpectedPreComputed {
		result.Failures = append(result.Failures, fmt.Sprintf("pre-computed: want %q, got %q", item.ExpectedPreComputed, resp.PreComputed))
	}
	if item.ExpectTransactions != nil && resp.IncludedTransactions != *item.ExpectTransactions {
		result.Failures = append(result.Failures, fmt.Sprintf("transactions included: want %t, got %t", *item.ExpectTransactions, resp.IncludedTransactions))
	}
	if item.AnswerContains != "" && !strings.Contains(resp.Answer, item.AnswerContains) {
		result.Failures = append(result.Failures, fmt.Sprintf("answer does not contain %q", item.AnswerContains))
	}

	if item.GroundTruth != "" && e.embedder != nil {
		sim, err := e.calculateCosineSimilarity(ctx, resp.Answer, item.GroundTruth)
		if err != nil {
			logger.Warn("Failed to calculate cosine similarity", zap.String("item", item.Name), zap.Error(err))
		}
		result.CosineSimilarity = sim
	}

	result.Passed = len(result.Failures) == 0
	return result
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *Dataset) *Report {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{
		TotalQuestions: len(dataset.Items),
		Outcomes:       map[string]int{},
	}

	var totalSim float64
	var scored int
	for i, item := range dataset.Items {
		logger.Debug("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		result := e.EvaluateItem(ctx, item)
		report.Items = append(report.Items, result)
		report.Outcomes[result.Outcome]++
		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		if item.GroundTruth != "" && e.embedder != nil {
			totalSim += result.CosineSimilarity
			scored++
		}
	}

	if report.TotalQuestions > 0 {
		report.PassPercentage = float64(report.Passed) / float64(report.TotalQuestions) * 100
	}
	if scored > 0 {
		report.AvgCosineSimilarity = totalSim / float64(scored)
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (e *Evaluator) calculateCosineSimilarity(ctx context.Context, a, b string) (float64, error) {
	embeddings, err := e.embedder.EmbedBatch(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	if len(embeddings) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(embeddings))
	}
	return cosineSimilarity(embeddings[0], embeddings[1]), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// WriteReport prints a plain-text summary followed by each failing item.
func WriteReport(w io.Writer, r *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Questions: %d  Passed: %d  Failed: %d  (%.1f%%)\n", r.TotalQuestions, r.Passed, r.Failed, r.PassPercentage)
	if r.AvgCosineSimilarity > 0 {
		fmt.Fprintf(&b, "Average similarity to ground truth: %.3f\n", r.AvgCosineSimilarity)
	}
	for outcome, n := range r.Outcomes {
		fmt.Fprintf(&b, "  %s: %d\n", outcome, n)
	}
	for _, item := range r.Items {
		if item.Passed {
			continue
		}
		fmt.Fprintf(&b, "FAIL %s\n", item.Name)
		for _, f := range item.Failures {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
