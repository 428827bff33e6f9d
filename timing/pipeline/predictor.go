package pipeline

import "github.com/sarchlab/ooosim/insts"

// Prediction is the fetch-time guess for a control-flow instruction.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted address of the next instruction.
	Target uint64
	// Tag is returned to the predictor in Update.
	Tag uint64
}

// BranchPredictor predicts control flow at fetch and learns from resolved
// branches.
type BranchPredictor interface {
	Predict(pc uint64, inst *insts.Instruction) Prediction
	Update(tag, pc uint64, taken bool, target uint64, correct bool)
}

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Predictions is the number of fetch-time predictions, wrong path
	// included.
	Predictions uint64
	// Correct is the number of correct predictions.
	Correct uint64
	// Mispredictions is the number of incorrect predictions.
	Mispredictions uint64
}

// Accuracy returns the percentage of resolved branches that were predicted
// correctly. Predictions made on the wrong path never resolve and are not
// counted.
func (s BranchPredictorStats) Accuracy() float64 {
	resolved := s.Correct + s.Mispredictions
	if resolved == 0 {
		return 0
	}
	return float64(s.Correct) / float64(resolved) * 100
}

// StaticPredictor predicts conditional branches not taken, direct jumps to
// their target and indirect jumps to fall through.
type StaticPredictor struct {
	stats BranchPredictorStats
}

// NewStaticPredictor creates a static predictor.
func NewStaticPredictor() *StaticPredictor {
	return &StaticPredictor{}
}

// Predict returns the static guess for inst at pc.
func (bp *StaticPredictor) Predict(pc uint64, inst *insts.Instruction) Prediction {
	bp.stats.Predictions++

	if inst.Op == insts.OpJAL {
		return Prediction{Taken: true, Target: pc + uint64(inst.Imm)}
	}

	return Prediction{Target: pc + insts.InstSize}
}

// Update records whether the prediction was right.
func (bp *StaticPredictor) Update(_, _ uint64, _ bool, _ uint64, correct bool) {
	if correct {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}
}

// Stats returns the branch predictor statistics.
func (bp *StaticPredictor) Stats() BranchPredictorStats {
	return bp.stats
}
