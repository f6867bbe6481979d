// Package events walks an event stream and yields the items whose conditions
// hold. Conditions are evaluated lazily, one item at a time, so a mutation
// applied by the consumer is visible to the next item's condition.
package events

import (
	"fmt"
	"iter"

	"github.com/nathoo/chronicle/engine/rules"
	"github.com/nathoo/chronicle/types"
)

// ConditionError reports an item whose condition could not be evaluated.
type ConditionError struct {
	Stream string
	Index  int
	Err    error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("event stream %q item %d: %v", e.Stream, e.Index, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// Run returns the eligible items of stream in declared order. Ineligible
// items are skipped and not retried in the same pass. A condition error is
// yielded once and ends the sequence.
//
// The sequence holds no state between calls; ranging over it again starts a
// fresh pass against whatever lookup reports at that time.
func Run(stream types.EventStreamDef, lookup rules.Lookup) iter.Seq2[types.EventDef, error] {
	return func(yield func(types.EventDef, error) bool) {
		for i, ev := range stream.Events {
			ok, err := rules.Eval(ev.Condition, lookup)
			if err != nil {
				yield(ev, &ConditionError{Stream: stream.ID, Index: i, Err: err})
				return
			}
			if !ok {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Eligible evaluates every condition against the current state and returns
// the items that hold. No effects run in between, so use Run when earlier
// items may change what later conditions see.
func Eligible(stream types.EventStreamDef, lookup rules.Lookup) ([]types.EventDef, error) {
	var out []types.EventDef
	for ev, err := range Run(stream, lookup) {
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
