package evaluation

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-assistant/backend/internal/assistant"
	"github.com/bank-assistant/backend/internal/llm"
	"github.com/bank-assistant/backend/internal/router"
)

type scriptedAnswerer map[string]assistant.Response

func (s scriptedAnswerer) Answer(_ context.Context, req assistant.Request) assistant.Response {
	return s[req.Question]
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func (fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "€") {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

const dataset = `{
  "items": [
    {
      "name": "groceries",
      "question": "How much did I spend on groceries?",
      "customer_id": 1001,
      "expected_intent": "calculation",
      "expected_pre_computed": "The total amount spent on 'Grocery' this month is €45.50.",
      "expect_transactions": false,
      "ground_truth": "You spent €45.50."
    },
    {
      "question": "What are the card fees?",
      "customer_id": 1001,
      "expected_intent": "general",
      "expect_transactions": true,
      "answer_contains": "€2"
    }
  ]
}`

func answers() scriptedAnswerer {
	return scriptedAnswerer{
		"How much did I spend on groceries?": {
			Answer:      "You spent €45.50 on groceries.",
			Decision:    router.Decision{Intent: router.IntentCalculation},
			PreComputed: "The total amount spent on 'Grocery' this month is €45.50.",
			Outcome:     llm.OutcomeSuccess,
			Attempts:    1,
		},
		"What are the card fees?": {
			Answer:               "Sorry, the service is overloaded.",
			Decision:             router.Decision{Intent: router.IntentGeneral},
			IncludedTransactions: true,
			Outcome:              llm.OutcomeOverloaded,
			Attempts:             3,
		},
	}
}

func TestReadDataset(t *testing.T) {
	ds, err := ReadDataset(strings.NewReader(dataset))
	require.NoError(t, err)
	require.Len(t, ds.Items, 2)
	assert.Equal(t, "groceries", ds.Items[0].Name)
	assert.Equal(t, "item_2", ds.Items[1].Name)
	require.NotNil(t, ds.Items[0].ExpectTransactions)
	assert.False(t, *ds.Items[0].ExpectTransactions)

	_, err = ReadDataset(strings.NewReader(`{"items":[{"customer_id":1}]}`))
	assert.Error(t, err)
}

func TestRunDatasetEvaluation(t *testing.T) {
	ds, err := ReadDataset(strings.NewReader(dataset))
	require.NoError(t, err)

	report := NewEvaluator(answers(), fixedEmbedder{}).RunDatasetEvaluation(context.Background(), ds)

	assert.Equal(t, 2, report.TotalQuestions)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.InDelta(t, 50.0, report.PassPercentage, 0.001)
	assert.Equal(t, map[string]int{"success": 1, "overloaded": 1}, report.Outcomes)
	assert.InDelta(t, 1.0, report.AvgCosineSimilarity, 0.0001)

	require.Len(t, report.Items[1].Failures, 1)
	assert.Contains(t, report.Items[1].Failures[0], `"€2"`)

	var out bytes.Buffer
	require.NoError(t, WriteReport(&out, report))
	assert.Contains(t, out.String(), "Passed: 1")
	assert.Contains(t, out.String(), "FAIL item_2")
}

func TestEvaluateItemFlagsPreComputedMismatch(t *testing.T) {
	e := NewEvaluator(answers(), nil)

	result := e.EvaluateItem(context.Background(), DatasetItem{
		Question:            "How much did I spend on groceries?",
		ExpectedPreComputed: "The total amount spent on 'Grocery' this month is €0.00.",
	})
	assert.False(t, result.Passed)
	assert.Zero(t, result.CosineSimilarity)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
