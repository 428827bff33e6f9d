package lsq

// DependencePredictor decides whether a load should wait for older stores
// with unknown addresses.
type DependencePredictor interface {
	PredictDependent(pc uint64) bool
	// Train is called with the PC of a load that caused a violation.
	Train(pc uint64)
}

// StickyPredictor marks a load PC as dependent after its first violation
// and never forgets it.
type StickyPredictor struct {
	dependent map[uint64]bool
}

// NewStickyPredictor creates a predictor that initially lets every load
// speculate.
func NewStickyPredictor() *StickyPredictor {
	return &StickyPredictor{dependent: make(map[uint64]bool)}
}

// PredictDependent reports whether the load at pc has violated before.
func (p *StickyPredictor) PredictDependent(pc uint64) bool {
	return p.dependent[pc]
}

// Train marks the load at pc as dependent.
func (p *StickyPredictor) Train(pc uint64) {
	p.dependent[pc] = true
}

// AlwaysDependent never lets a load pass a store with an unknown address.
type AlwaysDependent struct{}

// PredictDependent always returns true.
func (AlwaysDependent) PredictDependent(uint64) bool { return true }

// Train does nothing.
func (AlwaysDependent) Train(uint64) {}
