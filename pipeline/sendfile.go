package pipeline

import (
	"context"
	"encoding/hex"

	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tvmlabs/tonctl/internal/metrics"
)

// SendBOC submits a pre-encoded message blob, such as the output of the
// config-update builder or a message prepared elsewhere. No confirmation
// wait is performed; the caller tracks the outcome out of band.
func (p *Pipeline) SendBOC(ctx context.Context, mode Mode, msgBOC []byte) *Outcome {
	msgCell, err := cell.FromBOC(msgBOC)
	if err != nil {
		return p.failed(mode, nil, validationError("message file is not a valid BoC: %v", err))
	}
	msgID := hex.EncodeToString(msgCell.Hash())

	p.printf(mode, "Processing...")
	p.printf(mode, "MessageId: %s", msgID)

	if err := p.node.SendMessage(ctx, msgBOC); err != nil {
		metrics.IncrementSubmitFailures()
		outcome := &Outcome{
			Status:    StatusFailed,
			MessageID: msgID,
			Result:    "{}",
			Err:       transportError(err, "failed to submit message %s", msgID),
		}
		p.printf(mode, "Error: %s", outcome.Err.Error())
		return outcome
	}
	metrics.IncrementMessagesSubmitted()
	p.sink.Emit(MessageSent{MessageID: msgID})

	p.printf(mode, "Succeeded.")
	return &Outcome{
		Status:    StatusAsyncAccepted,
		MessageID: msgID,
		Result:    "{}",
	}
}
