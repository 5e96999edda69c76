package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tvmlabs/tonctl/internal/logz"
	"github.com/tvmlabs/tonctl/internal/metrics"
	"github.com/tvmlabs/tonctl/internal/snapstore"
	"github.com/tvmlabs/tonctl/tvm"
)

// Snapshot is the pre-submission state tuple a replay executes against. It
// is captured before the message goes out so it reflects exactly what the
// chain saw at the failing attempt, and materialized lazily: nothing
// expensive happens unless the failure actually fires.
type Snapshot struct {
	AccountBOC []byte
	ConfigBOC  []byte
	Addr       string
	LT         uint64
	Now        uint32
}

// CaptureSnapshot fetches the account and config state ahead of submission.
// Returns nil without error when the trace level disables the replay path.
func (p *Pipeline) CaptureSnapshot(ctx context.Context, mode Mode, call *PreparedCall) (*Snapshot, error) {
	if mode.Trace == tvm.TraceNone {
		return nil, nil
	}
	addr := call.Request.Address

	account, err := p.node.AccountState(ctx, addr)
	if err != nil {
		return nil, stateFetchError(err, "failed to snapshot account %s", addr.String())
	}
	configBOC, err := p.node.ConfigState(ctx)
	if err != nil {
		return nil, stateFetchError(err, "failed to snapshot blockchain config")
	}

	return &Snapshot{
		AccountBOC: account.BOC,
		ConfigBOC:  configBOC,
		Addr:       rawAddr(addr),
		LT:         account.LastLT,
		Now:        uint32(time.Now().Unix()),
	}, nil
}

// Replay re-executes the exact failed message against the pre-submission
// snapshot under the tracing executor and writes the trace to the
// configured path. It always returns a terminal failure: the original
// execution error, or a replay-machinery error layered on top of it.
func (p *Pipeline) Replay(ctx context.Context, mode Mode, call *PreparedCall, snap *Snapshot, origErr *CallError) *CallError {
	msgID := call.Message.IDString()
	metrics.IncrementReplaysTriggered()
	p.sink.Emit(ReplayStarted{MessageID: msgID, ExitCode: origErr.ExitCode})

	if snap == nil {
		metrics.IncrementReplayFailures()
		return replayError(origErr, nil, "no pre-submission snapshot was captured")
	}
	if len(snap.ConfigBOC) == 0 {
		metrics.IncrementReplayFailures()
		return replayError(origErr, nil, "cannot reconstruct blockchain config from snapshot")
	}

	p.archiveSnapshot(call, snap)

	result, err := p.exec.Run(ctx, tvm.RunParams{
		MessageBOC: call.Message.BOC,
		Account: tvm.AccountState{
			BOC:         snap.AccountBOC,
			Addr:        snap.Addr,
			Placeholder: len(snap.AccountBOC) == 0,
		},
		ConfigBOC: snap.ConfigBOC,
		Now:       snap.Now,
		LT:        snap.LT,
		Trace:     mode.Trace,
	})
	if err != nil {
		metrics.IncrementReplayFailures()
		p.sink.Emit(ReplayFinished{MessageID: msgID, Err: err})
		return replayError(origErr, err, "tracing execution failed")
	}

	tracePath := p.cfg.Debug.TracePath
	if err := p.writeTrace(tracePath, call, result); err != nil {
		metrics.IncrementReplayFailures()
		p.sink.Emit(ReplayFinished{MessageID: msgID, Err: err})
		return replayError(origErr, err, "failed to write trace to %s", tracePath)
	}

	p.sink.Emit(ReplayFinished{MessageID: msgID, TracePath: tracePath})
	p.printf(mode, "Log saved to %s", tracePath)

	// Replay never fixes or retries the call, it only explains it.
	return origErr
}

// writeTrace overwrites the diagnostic log with this replay's trace.
func (p *Pipeline) writeTrace(path string, call *PreparedCall, result *tvm.Result) error {
	w, err := logz.NewTraceWriter(path)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.WriteLine(fmt.Sprintf("message: %s", call.Message.IDString())); err != nil {
		return err
	}
	if err := w.WriteLine(fmt.Sprintf("method: %s", call.Request.Method)); err != nil {
		return err
	}
	if result.Transaction != nil {
		if err := w.WriteLine(fmt.Sprintf("exit code: %d", result.ExitCode())); err != nil {
			return err
		}
	}
	for _, line := range result.TraceLines {
		if err := w.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// archiveSnapshot stores the snapshot for later offline replays. Archive
// failures are logged, not fatal: the live replay still has the data.
func (p *Pipeline) archiveSnapshot(call *PreparedCall, snap *Snapshot) {
	if p.store == nil {
		return
	}
	rec := &snapstore.Record{
		MessageID:  call.Message.ID,
		MessageBOC: call.Message.BOC,
		AccountBOC: snap.AccountBOC,
		ConfigBOC:  snap.ConfigBOC,
		Addr:       snap.Addr,
		LT:         snap.LT,
		Now:        snap.Now,
		ExpireAt:   call.Message.ExpireAt,
	}
	if err := p.store.Put(rec); err != nil {
		p.logger.Warn("failed to archive snapshot for %s: %v", call.Message.IDString(), err)
		return
	}
	if count, err := p.store.Count(); err == nil {
		metrics.SetSnapshotEntries(int64(count))
	}
}

// ReplayArchived re-runs an archived snapshot by message id, long after the
// chain has moved on. The trace lands at the configured path.
func (p *Pipeline) ReplayArchived(ctx context.Context, mode Mode, messageID string) (string, error) {
	if p.store == nil {
		return "", validationError("no snapshot archive is configured")
	}
	id, err := hex.DecodeString(messageID)
	if err != nil {
		return "", validationError("message id %q is not hex", messageID)
	}

	rec, err := p.store.Get(id)
	if err != nil {
		return "", stateFetchError(err, "no archived snapshot for message %s", messageID)
	}

	trace := mode.Trace
	if trace == tvm.TraceNone {
		trace = tvm.TraceFull
	}

	result, err := p.exec.Run(ctx, tvm.RunParams{
		MessageBOC: rec.MessageBOC,
		Account: tvm.AccountState{
			BOC:         rec.AccountBOC,
			Addr:        rec.Addr,
			Placeholder: len(rec.AccountBOC) == 0,
		},
		ConfigBOC: rec.ConfigBOC,
		Now:       rec.Now,
		LT:        rec.LT,
		Trace:     trace,
	})
	if err != nil {
		return "", fmt.Errorf("tracing execution failed: %w", err)
	}

	tracePath := p.cfg.Debug.TracePath
	w, err := logz.NewTraceWriter(tracePath)
	if err != nil {
		return "", fmt.Errorf("failed to open trace log: %w", err)
	}
	defer w.Close()

	lines := []string{
		fmt.Sprintf("message: %s", messageID),
		fmt.Sprintf("archived: %s", rec.CreatedAt.Format(time.RFC3339)),
	}
	if result.Transaction != nil {
		lines = append(lines, fmt.Sprintf("exit code: %d", result.ExitCode()))
	}
	lines = append(lines, result.TraceLines...)
	for _, line := range lines {
		if err := w.WriteLine(line); err != nil {
			return "", fmt.Errorf("failed to write trace log: %w", err)
		}
	}
	return tracePath, nil
}
