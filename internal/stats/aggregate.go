package stats

import "github.com/verte-zerg/neotype/internal/model"

// Weights of the cross-session exponential smoothing.
const (
	PrevWeight   = 0.9
	SampleWeight = 0.1
)

// Smooth folds sample into a rolling average.
func Smooth(prev, sample float64) float64 {
	return prev*PrevWeight + sample*SampleWeight
}

// Fold applies a finalized session to the rolling aggregate and reports
// whether it set a new best for its duration. Only record-eligible,
// server-confirmed sessions move the averages and bests; everything else
// counts toward TotalTests only.
func Fold(agg model.Aggregate, p model.Payload) (model.Aggregate, bool) {
	if agg.BestWPM == nil {
		agg.BestWPM = map[int]float64{}
	}
	agg.TotalTests++
	if !p.RecordEligible || !p.ServerConfirmed {
		return agg, false
	}
	agg.CompletedTests++
	agg.AvgWPM = Smooth(agg.AvgWPM, p.Result.WPM)
	agg.AvgAccuracy = Smooth(agg.AvgAccuracy, p.Result.Accuracy)

	best, ok := agg.BestWPM[p.Duration]
	if ok && p.Result.WPM <= best {
		return agg, false
	}
	agg.BestWPM[p.Duration] = p.Result.WPM
	return agg, true
}
