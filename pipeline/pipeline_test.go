package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tvmlabs/tonctl/abi"
	"github.com/tvmlabs/tonctl/internal/config"
	"github.com/tvmlabs/tonctl/liteapi"
	"github.com/tvmlabs/tonctl/tvm"
)

const pipelineTestABI = `{
	"ABI version": 2,
	"header": ["time", "expire"],
	"functions": [
		{
			"name": "inc",
			"inputs": [{"name": "amount", "type": "uint32"}],
			"outputs": [{"name": "value", "type": "uint32"}]
		}
	]
}`

type fakeNode struct {
	account     *liteapi.AccountSnapshot
	accountErr  error
	configBOC   []byte
	configErr   error
	sendErr     error
	sent        [][]byte
	tx          *liteapi.ConfirmedTransaction
	waitErr     error
	waitCalls   int
	waitSinceLT uint64
}

func (f *fakeNode) AccountState(ctx context.Context, addr *address.Address) (*liteapi.AccountSnapshot, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return f.account, nil
}

func (f *fakeNode) ConfigState(ctx context.Context) ([]byte, error) {
	if f.configErr != nil {
		return nil, f.configErr
	}
	return f.configBOC, nil
}

func (f *fakeNode) SendMessage(ctx context.Context, msgBOC []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msgBOC)
	return nil
}

func (f *fakeNode) WaitTransaction(ctx context.Context, msgBOC []byte, sinceLT uint64, expireAt uint32) (*liteapi.ConfirmedTransaction, error) {
	f.waitCalls++
	f.waitSinceLT = sinceLT
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.tx, nil
}

type fakeExecutor struct {
	runs   []tvm.RunParams
	result *tvm.Result
	err    error
}

func (f *fakeExecutor) Run(ctx context.Context, params tvm.RunParams) (*tvm.Result, error) {
	f.runs = append(f.runs, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func successResult() *tvm.Result {
	fwd := uint64(10)
	val := uint64(100)
	return &tvm.Result{
		Transaction: &tvm.Transaction{
			TotalFees: 500,
			InMsg:     &tvm.Message{FwdFee: &fwd},
			OutMsgs:   []tvm.Message{{Value: &val}},
			Description: tvm.TransactionDescr{
				StoragePh: tvm.StoragePhase{StorageFeesCollected: 20},
				ComputePh: tvm.ComputePhaseVar{
					Type: 1,
					Data: tvm.ComputePhaseVm{Success: true, GasFees: 300},
				},
			},
		},
		TraceLines: []string{"PUSH 1", "ADD"},
	}
}

type testEnv struct {
	pipe *Pipeline
	node *fakeNode
	exec *fakeExecutor
	out  *bytes.Buffer
	cfg  *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Debug.TracePath = filepath.Join(t.TempDir(), "trace.log")

	node := &fakeNode{
		account: &liteapi.AccountSnapshot{
			BOC:    []byte("account-state"),
			Exists: true,
			Active: true,
			LastLT: 100,
		},
		configBOC: []byte("config-state"),
	}
	exec := &fakeExecutor{result: successResult()}
	out := &bytes.Buffer{}

	pipe, err := New(cfg, node, exec, Options{Out: out})
	require.NoError(t, err)

	return &testEnv{pipe: pipe, node: node, exec: exec, out: out, cfg: cfg}
}

func testRequest(t *testing.T) CallRequest {
	t.Helper()
	contract, err := abi.LoadContract([]byte(pipelineTestABI))
	require.NoError(t, err)
	return CallRequest{
		Address:     address.NewAddress(0, 0, make([]byte, 32)),
		Contract:    contract,
		Method:      "inc",
		ParamTokens: []string{"--amount", "42"},
	}
}

func outputBody(t *testing.T, contract *abi.Contract, value uint64) []byte {
	t.Helper()
	fn, err := contract.Function("inc")
	require.NoError(t, err)
	outID, err := fn.OutputID()
	require.NoError(t, err)
	return cell.BeginCell().
		MustStoreUInt(uint64(outID), 32).
		MustStoreUInt(value, 32).
		EndCell().ToBOC()
}

func TestFeeEstimateMissingAccount(t *testing.T) {
	env := newTestEnv(t)
	env.node.account = &liteapi.AccountSnapshot{Exists: false}

	mode := Mode{FeeEstimate: true}
	outcome := env.pipe.Call(context.Background(), mode, testRequest(t))

	require.Nil(t, outcome.Err)
	assert.Equal(t, StatusConfirmed, outcome.Status)

	// The executor saw a synthesized zero-balance account with the balance
	// check lifted.
	require.Len(t, env.exec.runs, 1)
	run := env.exec.runs[0]
	assert.True(t, run.Account.Placeholder)
	assert.True(t, run.Account.UnlimitedBalance)
	assert.NotEmpty(t, run.Account.Addr)

	// All six fee fields are present in the report.
	for _, field := range []string{
		"in_msg_fwd_fee", "storage_fee", "gas_fee",
		"out_msgs_fwd_fee", "total_account_fees", "total_output",
	} {
		assert.Contains(t, outcome.Result, field)
	}

	// Fee mode never contacts the submission engine.
	assert.Empty(t, env.node.sent)
	assert.Zero(t, env.node.waitCalls)
}

func TestMissingAccountWithoutFeeMode(t *testing.T) {
	env := newTestEnv(t)
	env.node.account = &liteapi.AccountSnapshot{Exists: false}

	mode := Mode{LocalRun: true}
	outcome := env.pipe.Call(context.Background(), mode, testRequest(t))

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ClassValidation, outcome.Err.Class)
	assert.Contains(t, outcome.Err.Message, "does not exist")
	assert.Empty(t, env.node.sent)
}

func TestSynchronousCallWithOutput(t *testing.T) {
	env := newTestEnv(t)
	req := testRequest(t)
	env.node.tx = &liteapi.ConfirmedTransaction{
		Hash:         []byte{0xAA, 0xBB},
		LT:           200,
		ExitCode:     0,
		OutputBodies: [][]byte{outputBody(t, req.Contract, 42)},
	}

	outcome := env.pipe.Call(context.Background(), Mode{}, req)

	require.Nil(t, outcome.Err)
	assert.Equal(t, StatusConfirmed, outcome.Status)
	assert.Equal(t, `{"value":"42"}`, outcome.Result)
	assert.Equal(t, "aabb", outcome.TxHash)

	text := env.out.String()
	succeededAt := strings.Index(text, "Succeeded.")
	resultAt := strings.Index(text, "Result:")
	require.GreaterOrEqual(t, succeededAt, 0)
	require.GreaterOrEqual(t, resultAt, 0)
	assert.Less(t, succeededAt, resultAt, "Succeeded. precedes the result line")
}

func TestSynchronousCallWithoutOutput(t *testing.T) {
	env := newTestEnv(t)
	env.node.tx = &liteapi.ConfirmedTransaction{Hash: []byte{0x01}, ExitCode: 0}

	outcome := env.pipe.Call(context.Background(), Mode{}, testRequest(t))

	require.Nil(t, outcome.Err)
	assert.Equal(t, "{}", outcome.Result, "no decodable output yields an empty object")
}

func TestAsynchronousCall(t *testing.T) {
	env := newTestEnv(t)

	outcome := env.pipe.Call(context.Background(), Mode{Async: true}, testRequest(t))

	require.Nil(t, outcome.Err)
	assert.Equal(t, StatusAsyncAccepted, outcome.Status)
	assert.Equal(t, "{}", outcome.Result)
	assert.Len(t, env.node.sent, 1)
	assert.Zero(t, env.node.waitCalls, "async mode performs no transaction lookup")
}

func TestTransportFailureDoesNotReplay(t *testing.T) {
	env := newTestEnv(t)
	env.node.sendErr = assert.AnError

	mode := Mode{Trace: tvm.TraceFull}
	outcome := env.pipe.Call(context.Background(), mode, testRequest(t))

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ClassTransport, outcome.Err.Class)
	// Snapshot capture ran, the replay executor did not.
	assert.Empty(t, env.exec.runs)
	_, err := os.Stat(env.cfg.Debug.TracePath)
	assert.True(t, os.IsNotExist(err), "no trace file without a replay")
}

func TestExecutionFailureTriggersReplay(t *testing.T) {
	env := newTestEnv(t)
	env.node.tx = &liteapi.ConfirmedTransaction{
		Hash:     []byte{0x01},
		ExitCode: 77,
	}

	mode := Mode{Trace: tvm.TraceFull}
	outcome := env.pipe.Call(context.Background(), mode, testRequest(t))

	require.NotNil(t, outcome.Err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, ClassExecution, outcome.Err.Class)
	assert.Equal(t, int32(ExecutionErrorCode), outcome.Err.Code)
	assert.Equal(t, int32(77), outcome.Err.ExitCode)

	// The replay ran against the pre-submission snapshot under tracing.
	require.Len(t, env.exec.runs, 1)
	run := env.exec.runs[0]
	assert.Equal(t, tvm.TraceFull, run.Trace)
	assert.Equal(t, []byte("account-state"), run.Account.BOC)
	assert.Equal(t, []byte("config-state"), run.ConfigBOC)
	assert.Equal(t, uint64(100), run.LT)

	data, err := os.ReadFile(env.cfg.Debug.TracePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PUSH 1")

	text := env.out.String()
	assert.Contains(t, text, "Execution failed. Starting debug...")
	assert.Contains(t, text, "Debug finished.")
	assert.Contains(t, text, "Log saved to "+env.cfg.Debug.TracePath)
}

func TestExecutionFailureWithoutTraceMode(t *testing.T) {
	env := newTestEnv(t)
	env.node.tx = &liteapi.ConfirmedTransaction{Hash: []byte{0x01}, ExitCode: 77}

	outcome := env.pipe.Call(context.Background(), Mode{}, testRequest(t))

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ClassExecution, outcome.Err.Class)
	assert.Empty(t, env.exec.runs, "replay is armed only by the trace mode")
}

func TestReplayMachineryFailureIsLayered(t *testing.T) {
	env := newTestEnv(t)
	env.node.tx = &liteapi.ConfirmedTransaction{Hash: []byte{0x01}, ExitCode: 77}
	env.exec.err = assert.AnError

	mode := Mode{Trace: tvm.TraceMinimal}
	outcome := env.pipe.Call(context.Background(), mode, testRequest(t))

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ClassReplay, outcome.Err.Class)
	assert.Contains(t, outcome.Err.Message, "while diagnosing", "the original failure is preserved")
}

func TestLocalRunGate(t *testing.T) {
	env := newTestEnv(t)
	env.node.tx = &liteapi.ConfirmedTransaction{Hash: []byte{0x01}, ExitCode: 0}

	outcome := env.pipe.Call(context.Background(), Mode{LocalRun: true}, testRequest(t))

	require.Nil(t, outcome.Err)
	require.Len(t, env.exec.runs, 1, "local pre-flight run")
	assert.False(t, env.exec.runs[0].Account.UnlimitedBalance)
	assert.Contains(t, env.out.String(), "Local run succeeded. Executing onchain.")
}

func TestLocalRunFailureHaltsSubmission(t *testing.T) {
	env := newTestEnv(t)
	failed := successResult()
	failed.Transaction.Description.ComputePh.Data = tvm.ComputePhaseVm{Success: false, ExitCode: 13}
	env.exec.result = failed

	outcome := env.pipe.Call(context.Background(), Mode{LocalRun: true}, testRequest(t))

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ClassExecution, outcome.Err.Class)
	assert.Empty(t, env.node.sent, "a failed pre-flight run halts the call")
}

func TestJSONModeSuppressesProgressLines(t *testing.T) {
	env := newTestEnv(t)
	env.node.tx = &liteapi.ConfirmedTransaction{Hash: []byte{0x01}, ExitCode: 0}

	outcome := env.pipe.Call(context.Background(), Mode{JSON: true}, testRequest(t))

	require.Nil(t, outcome.Err)
	assert.Empty(t, env.out.String())
}

func TestValidationFailureBeforeNetwork(t *testing.T) {
	env := newTestEnv(t)
	req := testRequest(t)
	req.ParamTokens = []string{"--wrong", "1", "--tokens", "2"}

	outcome := env.pipe.Call(context.Background(), Mode{}, req)

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ClassValidation, outcome.Err.Class)
	assert.Contains(t, outcome.Err.Message, `argument "amount"`)
	assert.Empty(t, env.node.sent)
	assert.Empty(t, env.exec.runs)
}

func TestSyncWaitBoundedByPreSubmissionLT(t *testing.T) {
	env := newTestEnv(t)
	env.node.tx = &liteapi.ConfirmedTransaction{Hash: []byte{0x01}, ExitCode: 0}

	// Trace mode off, so no replay snapshot carries the bound.
	outcome := env.pipe.Call(context.Background(), Mode{}, testRequest(t))

	require.Nil(t, outcome.Err)
	require.Equal(t, 1, env.node.waitCalls)
	assert.Equal(t, uint64(100), env.node.waitSinceLT,
		"the confirmation search starts at the destination's pre-submission LT")
}

func TestSyncWaitBoundFetchFailureHaltsCall(t *testing.T) {
	env := newTestEnv(t)
	env.node.accountErr = assert.AnError

	outcome := env.pipe.Call(context.Background(), Mode{}, testRequest(t))

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ClassStateFetch, outcome.Err.Class)
	assert.Empty(t, env.node.sent, "no submission without the LT bound")
}

func TestEmulatorUnreachableIsTransport(t *testing.T) {
	env := newTestEnv(t)
	env.exec.err = assert.AnError

	outcome := env.pipe.Call(context.Background(), Mode{FeeEstimate: true}, testRequest(t))

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ClassTransport, outcome.Err.Class, "an unreachable executor is not an on-chain failure")
	assert.NotEqual(t, int32(ExecutionErrorCode), outcome.Err.Code)
}

func TestSendBOC(t *testing.T) {
	env := newTestEnv(t)

	msg := cell.BeginCell().MustStoreUInt(1, 32).EndCell().ToBOC()
	outcome := env.pipe.SendBOC(context.Background(), Mode{}, msg)

	require.Nil(t, outcome.Err)
	assert.Equal(t, StatusAsyncAccepted, outcome.Status)
	assert.Len(t, env.node.sent, 1)
	assert.Len(t, outcome.MessageID, 64)
}
