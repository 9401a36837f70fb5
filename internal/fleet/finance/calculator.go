// Package finance holds the pure financial derivations for trips.
package finance

// Profit derives the trip outcome from revenue and cost. Both inputs are
// validated non-negative by the caller.
func Profit(revenue, cost float64) float64 {
	return revenue - cost
}

// DefaultProfitThreshold mirrors the reporting convention used by the fleet's
// productivity dashboard. It is a reporting convenience, not a domain truth.
const DefaultProfitThreshold = 30000

const (
	LabelProfit = "Profit"
	LabelLoss   = "Loss"
)

// Classifier labels a trip outcome against a configurable profit threshold.
type Classifier struct {
	threshold float64
}

// NewClassifier builds a Classifier. A non-positive threshold falls back to
// the default.
func NewClassifier(threshold float64) Classifier {
	if threshold <= 0 {
		threshold = DefaultProfitThreshold
	}
	return Classifier{threshold: threshold}
}

// Classify returns LabelProfit when profit meets the threshold, else LabelLoss.
func (c Classifier) Classify(profit float64) string {
	if profit >= c.threshold {
		return LabelProfit
	}
	return LabelLoss
}
