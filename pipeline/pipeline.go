// Package pipeline orchestrates one contract call end to end: prepare the
// message, optionally emulate it locally, submit it, wait for the outcome,
// and on a recognized on-chain execution failure replay it under a tracing
// executor.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xssnick/tonutils-go/address"

	"github.com/tvmlabs/tonctl/internal/config"
	"github.com/tvmlabs/tonctl/internal/logz"
	"github.com/tvmlabs/tonctl/internal/snapstore"
	"github.com/tvmlabs/tonctl/liteapi"
	"github.com/tvmlabs/tonctl/tvm"
)

// NodeClient is the network surface the pipeline needs. liteapi.Client
// implements it.
type NodeClient interface {
	AccountState(ctx context.Context, addr *address.Address) (*liteapi.AccountSnapshot, error)
	ConfigState(ctx context.Context) ([]byte, error)
	SendMessage(ctx context.Context, msgBOC []byte) error
	WaitTransaction(ctx context.Context, msgBOC []byte, sinceLT uint64, expireAt uint32) (*liteapi.ConfirmedTransaction, error)
}

// Mode is the immutable per-call flag set, consumed once at entry. Every
// stage reads it, none mutates it.
type Mode struct {
	// FeeEstimate runs the local executor for a fee breakdown and never
	// contacts the submission engine.
	FeeEstimate bool
	// Async returns right after network acceptance without waiting for the
	// transaction.
	Async bool
	// LocalRun emulates the call locally before submitting it.
	LocalRun bool
	// JSON suppresses interactive progress lines.
	JSON bool
	// Trace selects replay verbosity; TraceNone disables the replay path
	// entirely.
	Trace tvm.TraceLevel
}

// ModeFromConfig derives the per-call mode from loaded configuration.
func ModeFromConfig(cfg *config.Config) Mode {
	m := Mode{
		Async:    cfg.Call.AsyncCall,
		LocalRun: cfg.Call.LocalRun,
		JSON:     cfg.Call.IsJSON,
	}
	switch cfg.Debug.FailMode {
	case config.TraceFull:
		m.Trace = tvm.TraceFull
	case config.TraceMinimal:
		m.Trace = tvm.TraceMinimal
	default:
		m.Trace = tvm.TraceNone
	}
	return m
}

// Pipeline wires the collaborators of a call. Construct it once and reuse it
// across calls; it holds no per-call state.
type Pipeline struct {
	node   NodeClient
	exec   tvm.Executor
	store  *snapstore.Store
	sink   Sink
	cfg    *config.Config
	out    io.Writer
	logger *logz.Logger
}

// Options configures optional collaborators.
type Options struct {
	// Store archives replay snapshots. Nil disables archiving.
	Store *snapstore.Store
	// Sink receives progress events. Nil means no events.
	Sink Sink
	// Out receives interactive progress lines. Nil means stdout.
	Out io.Writer
}

// New creates a pipeline over a node client and an executor.
func New(cfg *config.Config, node NodeClient, exec tvm.Executor, opts Options) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if node == nil {
		return nil, fmt.Errorf("node client cannot be nil")
	}
	if exec == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}

	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	return &Pipeline{
		node:   node,
		exec:   exec,
		store:  opts.Store,
		sink:   sink,
		cfg:    cfg,
		out:    out,
		logger: logz.New(logz.INFO, "pipeline"),
	}, nil
}

// printf writes an interactive progress line unless JSON mode is on.
func (p *Pipeline) printf(mode Mode, format string, args ...interface{}) {
	if mode.JSON {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// rawAddr renders an address in workchain:hex form.
func rawAddr(addr *address.Address) string {
	return fmt.Sprintf("%d:%x", addr.Workchain(), addr.Data())
}
