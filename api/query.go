package api

import (
	"context"
	"fmt"
	"time"

	"github.com/PaesslerAG/gval"
)

// QueryEvaluationTimeout bounds the evaluation of a block filter over the whole chain.
const QueryEvaluationTimeout = 2 * time.Second

var queryLanguage = gval.NewLanguage(gval.Arithmetic(), gval.Bitmask(), gval.Text(), gval.PropositionalLogic(), gval.JSON())

// blockParameters exposes a block's fields to filter expressions.
func blockParameters(v BlockView) map[string]interface{} {
	return map[string]interface{}{
		"index":        float64(v.Index),
		"timestamp":    float64(v.Timestamp),
		"data":         v.Data,
		"previousHash": v.PreviousHash,
		"nonce":        float64(v.Nonce),
		"hash":         v.Hash,
		"miningTime":   float64(v.MiningTime),
		"linkValid":    v.LinkValid,
		"hashValid":    v.HashValid,
	}
}

/**
 * filterBlocks keeps the blocks for which expression evaluates to true, for
 * example `index > 0 && data =~ "Bob"` or `!hashValid`.
 *
 * Returns:
 *   - []BlockView: Matching blocks in chain order
 *   - error: Parse errors, non-boolean results or timeout
 */
func filterBlocks(ctx context.Context, views []BlockView, expression string) ([]BlockView, error) {
	eval, err := queryLanguage.NewEvaluable(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression %q: %w", expression, err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, QueryEvaluationTimeout)
	defer cancel()

	var matched []BlockView
	var errEval error
	done := make(chan struct{})
	go func() {
		defer close(done)
		matched = make([]BlockView, 0, len(views))
		for _, v := range views {
			if evalCtx.Err() != nil {
				return
			}
			ok, err := eval.EvalBool(evalCtx, blockParameters(v))
			if err != nil {
				errEval = fmt.Errorf("error evaluating filter %q on block %d: %w", expression, v.Index, err)
				return
			}
			if ok {
				matched = append(matched, v)
			}
		}
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("filter %q not evaluated: %w", expression, evalCtx.Err())
	case <-done:
	}
	if err := evalCtx.Err(); err != nil {
		return nil, fmt.Errorf("filter %q not evaluated: %w", expression, err)
	}
	if errEval != nil {
		return nil, errEval
	}
	return matched, nil
}
