package pipeline

import (
	"context"
	"time"

	"github.com/tvmlabs/tonctl/internal/metrics"
	"github.com/tvmlabs/tonctl/tvm"
)

// Emulate runs the prepared message against a snapshot of the destination
// account without touching the network beyond state fetches.
//
// In fee mode a missing destination account becomes a zero-balance
// placeholder and the balance check is lifted, so deploy fees estimate
// cleanly. Outside fee mode a missing account is a hard error and the run is
// purely a pre-flight validity gate.
func (p *Pipeline) Emulate(ctx context.Context, call *PreparedCall, feeMode bool) (*tvm.FeeReport, error) {
	addr := call.Request.Address

	snapshot, err := p.node.AccountState(ctx, addr)
	if err != nil {
		return nil, stateFetchError(err, "failed to fetch account %s", addr.String())
	}

	account := tvm.AccountState{
		BOC:  snapshot.BOC,
		Addr: rawAddr(addr),
	}
	if !snapshot.Exists {
		if !feeMode {
			return nil, validationError("account %s does not exist on chain", addr.String())
		}
		account.BOC = nil
		account.Placeholder = true
	}
	if feeMode {
		account.UnlimitedBalance = true
	}

	configBOC, err := p.node.ConfigState(ctx)
	if err != nil {
		return nil, stateFetchError(err, "failed to fetch blockchain config")
	}

	result, err := p.exec.Run(ctx, tvm.RunParams{
		MessageBOC:   call.Message.BOC,
		Account:      account,
		ConfigBOC:    configBOC,
		Now:          uint32(time.Now().Unix()),
		LT:           snapshot.LastLT,
		IgnoreChksig: feeMode,
	})
	if err != nil {
		// Failing to reach the executor is a transport fault, not a verdict
		// on the message. It halts the call before any network submission.
		return nil, transportError(err, "local executor unavailable")
	}
	metrics.IncrementEmulationsRun()

	if !result.Success() {
		return nil, executionError(result.ExitCode(),
			"local execution of %s failed with exit code %d", call.Request.Method, result.ExitCode())
	}

	if feeMode {
		fees := result.Fees()
		return &fees, nil
	}
	return nil, nil
}
