// Package tvm defines the executor boundary: the interface a transaction
// executor service implements, the state handed to a run, and the result the
// pipeline consumes. The executor itself is an external tracing VM reached
// over a queue, see the redisexec subpackage.
package tvm

import "context"

// AccountState is the destination account snapshot a run executes against.
type AccountState struct {
	// BOC is the serialized account state. Empty together with Placeholder
	// means the account does not exist on chain.
	BOC []byte
	// Placeholder asks the executor to synthesize a fresh zero-balance
	// account for Addr instead of loading BOC.
	Placeholder bool
	// UnlimitedBalance lifts the balance check so fee estimation works on
	// underfunded and placeholder accounts.
	UnlimitedBalance bool
	// Addr is the raw account address, required when Placeholder is set.
	Addr string
}

// TraceLevel selects how much VM detail a run records.
type TraceLevel int

const (
	TraceNone TraceLevel = iota
	TraceMinimal
	TraceFull
)

// RunParams describes one local execution of an inbound message.
type RunParams struct {
	MessageBOC []byte
	Account    AccountState
	// ConfigBOC is the serialized blockchain config the run executes under.
	ConfigBOC []byte
	// Now and LT pin the unix time and logical time of the run so a replay
	// reproduces the failing transaction exactly.
	Now uint32
	LT  uint64
	// IgnoreChksig skips signature checks, used for fee estimation.
	IgnoreChksig bool
	Trace        TraceLevel
}

// Result is the outcome of one local execution.
type Result struct {
	// Transaction is the emulated transaction, nil when the executor could
	// not even start the run.
	Transaction *Transaction
	// TraceLines holds the VM trace when a trace level was requested.
	TraceLines []string
}

// Success reports whether the compute phase ran and exited cleanly.
func (r *Result) Success() bool {
	vm := r.computeVm()
	return vm != nil && vm.Success && vm.ExitCode == 0
}

// ExitCode returns the compute-phase exit code, or 0 when the phase was
// skipped entirely.
func (r *Result) ExitCode() int32 {
	if vm := r.computeVm(); vm != nil {
		return vm.ExitCode
	}
	return 0
}

func (r *Result) computeVm() *ComputePhaseVm {
	if r == nil || r.Transaction == nil {
		return nil
	}
	if vm, ok := r.Transaction.Description.ComputePh.Data.(ComputePhaseVm); ok {
		return &vm
	}
	return nil
}

// Executor runs an inbound message against an account state and reports the
// emulated transaction.
type Executor interface {
	Run(ctx context.Context, params RunParams) (*Result, error)
}
