package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/tvmlabs/tonctl/abi"
	"github.com/tvmlabs/tonctl/internal/metrics"
)

// Status is the terminal state of a submission.
type Status int

const (
	StatusConfirmed Status = iota
	StatusAsyncAccepted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusAsyncAccepted:
		return "async_accepted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one call: a status, the decoded output (or fee
// report serialized upstream), and the terminal error when the call failed.
type Outcome struct {
	Status    Status
	MessageID string
	TxHash    string
	// Result is the decoded output as a JSON object. Calls without
	// decodable output yield "{}".
	Result string
	Err    *CallError
}

// Submit delivers the prepared message and, in synchronous mode, waits for
// the transaction and decodes its output. sinceLT is the destination's last
// transaction LT from the pre-submission snapshot, bounding the
// confirmation search.
func (p *Pipeline) Submit(ctx context.Context, mode Mode, call *PreparedCall, sinceLT uint64) *Outcome {
	msgID := call.Message.IDString()
	outcome := &Outcome{MessageID: msgID, Result: "{}"}

	if err := p.node.SendMessage(ctx, call.Message.BOC); err != nil {
		metrics.IncrementSubmitFailures()
		outcome.Status = StatusFailed
		outcome.Err = transportError(err, "failed to submit message %s", msgID)
		return outcome
	}
	metrics.IncrementMessagesSubmitted()
	p.sink.Emit(MessageSent{MessageID: msgID})
	p.logger.Debug("message %s accepted by the network", msgID)

	if mode.Async {
		outcome.Status = StatusAsyncAccepted
		return outcome
	}

	tx, err := p.node.WaitTransaction(ctx, call.Message.BOC, sinceLT, call.Message.ExpireAt)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = transportError(err, "failed to confirm message %s", msgID)
		return outcome
	}

	outcome.TxHash = hex.EncodeToString(tx.Hash)
	p.sink.Emit(CallConfirmed{MessageID: msgID, TxHash: outcome.TxHash, ExitCode: tx.ExitCode})

	if tx.ExitCode != 0 || tx.Aborted {
		outcome.Status = StatusFailed
		outcome.Err = executionError(tx.ExitCode,
			"transaction %s failed with exit code %d", outcome.TxHash, tx.ExitCode)
		return outcome
	}

	outcome.Status = StatusConfirmed
	outcome.Result = p.decodeOutput(call, tx.OutputBodies)
	return outcome
}

// decodeOutput scans outbound external messages for one matching the
// function's answer id. No decodable output is an empty object, not an
// error.
func (p *Pipeline) decodeOutput(call *PreparedCall, bodies [][]byte) string {
	for _, body := range bodies {
		out, err := abi.DecodeFunctionOutput(call.Function, body)
		if err != nil {
			p.logger.Debug("skipping undecodable output of %s: %v", call.Request.Method, err)
			continue
		}
		data, err := json.Marshal(out)
		if err != nil {
			p.logger.Warn("failed to serialize output of %s: %v", call.Request.Method, err)
			continue
		}
		return string(data)
	}
	return "{}"
}
