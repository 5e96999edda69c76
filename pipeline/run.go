package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tvmlabs/tonctl/tvm"
)

// Call runs one contract call end to end under the given mode and returns
// its terminal outcome. The flow is strictly sequential: prepare, optional
// local run, snapshot capture, submit, wait, and on a recognized execution
// failure a diagnostic replay. No stage is retried.
func (p *Pipeline) Call(ctx context.Context, mode Mode, req CallRequest) *Outcome {
	call, err := p.Prepare(req)
	if err != nil {
		return p.failed(mode, nil, asCallError(err))
	}

	p.printf(mode, "Processing...")
	p.printf(mode, "Expire at: %s", call.ExpireAt.Format(time.RFC1123))
	p.printf(mode, "MessageId: %s", call.Message.IDString())

	if mode.FeeEstimate {
		fees, err := p.Emulate(ctx, call, true)
		if err != nil {
			return p.failed(mode, call, asCallError(err))
		}
		return p.feeOutcome(mode, call, fees)
	}

	if mode.LocalRun {
		if _, err := p.Emulate(ctx, call, false); err != nil {
			return p.failed(mode, call, asCallError(err))
		}
		p.printf(mode, "Local run succeeded. Executing onchain.")
	}

	// Captured before submission so the snapshot predates the failing
	// attempt. Materialized into a replay only if the failure fires.
	snap, err := p.CaptureSnapshot(ctx, mode, call)
	if err != nil {
		return p.failed(mode, call, asCallError(err))
	}

	// The confirmation search is bounded below by the destination's last
	// transaction LT as seen before submission. Without the bound a repeated
	// identical message could match a historical transaction.
	var sinceLT uint64
	switch {
	case snap != nil:
		sinceLT = snap.LT
	case !mode.Async:
		account, err := p.node.AccountState(ctx, req.Address)
		if err != nil {
			return p.failed(mode, call, stateFetchError(err,
				"failed to read account %s before submission", req.Address.String()))
		}
		sinceLT = account.LastLT
	}

	outcome := p.Submit(ctx, mode, call, sinceLT)
	if outcome.Err == nil {
		p.printf(mode, "Succeeded.")
		if outcome.Status == StatusConfirmed {
			p.printf(mode, "Result: %s", outcome.Result)
		}
		return outcome
	}

	if IsExecutionFailure(outcome.Err) && mode.Trace != tvm.TraceNone {
		p.printf(mode, "Execution failed. Starting debug...")
		outcome.Err = p.Replay(ctx, mode, call, snap, outcome.Err)
		p.printf(mode, "Debug finished.")
	}

	p.printf(mode, "Error: %s", outcome.Err.Error())
	return outcome
}

// EstimateFees is the fee-mode entry point: it never contacts the
// submission engine.
func (p *Pipeline) EstimateFees(ctx context.Context, mode Mode, req CallRequest) *Outcome {
	mode.FeeEstimate = true
	return p.Call(ctx, mode, req)
}

func (p *Pipeline) feeOutcome(mode Mode, call *PreparedCall, fees *tvm.FeeReport) *Outcome {
	data, err := json.Marshal(fees)
	if err != nil {
		return p.failed(mode, call, validationError("failed to serialize fee report: %v", err))
	}
	p.printf(mode, "Succeeded.")
	p.printf(mode, "Result: %s", string(data))
	return &Outcome{
		Status:    StatusConfirmed,
		MessageID: call.Message.IDString(),
		Result:    string(data),
	}
}

func (p *Pipeline) failed(mode Mode, call *PreparedCall, err *CallError) *Outcome {
	outcome := &Outcome{Status: StatusFailed, Result: "{}", Err: err}
	if call != nil {
		outcome.MessageID = call.Message.IDString()
	}
	p.printf(mode, "Error: %s", err.Error())
	return outcome
}

func asCallError(err error) *CallError {
	if ce, ok := err.(*CallError); ok {
		return ce
	}
	return &CallError{Class: ClassTransport, Message: err.Error(), Err: err}
}
