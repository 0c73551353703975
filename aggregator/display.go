package aggregator

import (
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// Display receives every lifecycle event as a side channel for human-readable
// progress output. It cannot fail and never influences the report model.
type Display interface {
	RunStarted(count int)
	GroupEntered(group types.Group)
	CaseStarted(ex types.Example)
	CaseFailed(ex types.Example)
	CasePassed(ex types.Example)
	CasePending(ex types.Example)
	RunFinished()
}

// NopDisplay discards all events
type NopDisplay struct{}

var _ Display = NopDisplay{}

func (NopDisplay) RunStarted(int)            {}
func (NopDisplay) GroupEntered(types.Group)  {}
func (NopDisplay) CaseStarted(types.Example) {}
func (NopDisplay) CaseFailed(types.Example)  {}
func (NopDisplay) CasePassed(types.Example)  {}
func (NopDisplay) CasePending(types.Example) {}
func (NopDisplay) RunFinished()              {}
