package tvm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func encodeVariant(t *testing.T, index uint8, payload interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseArrayEncodedStructs(false)
	require.NoError(t, enc.EncodeArrayLen(2))
	require.NoError(t, enc.EncodeUint8(index))
	require.NoError(t, enc.Encode(payload))
	return buf.Bytes()
}

func TestComputePhaseVarDecode(t *testing.T) {
	raw := encodeVariant(t, 1, ComputePhaseVm{
		Success:  true,
		GasFees:  1000,
		GasUsed:  5000,
		ExitCode: 414,
	})

	var v ComputePhaseVar
	require.NoError(t, msgpack.Unmarshal(raw, &v))
	assert.Equal(t, uint8(1), v.Type)

	vm, ok := v.Data.(ComputePhaseVm)
	require.True(t, ok)
	assert.True(t, vm.Success)
	assert.Equal(t, uint64(1000), vm.GasFees)
	assert.Equal(t, int32(414), vm.ExitCode)
}

func TestComputePhaseVarDecodeSkipped(t *testing.T) {
	raw := encodeVariant(t, 0, ComputePhaseSkipped{Reason: ComputeSkipNoGas})

	var v ComputePhaseVar
	require.NoError(t, msgpack.Unmarshal(raw, &v))
	assert.Equal(t, uint8(0), v.Type)

	skipped, ok := v.Data.(ComputePhaseSkipped)
	require.True(t, ok)
	assert.Equal(t, ComputeSkipNoGas, skipped.Reason)
}

func TestComputePhaseVarDecodeUnknownIndex(t *testing.T) {
	raw := encodeVariant(t, 9, ComputePhaseSkipped{})

	var v ComputePhaseVar
	err := msgpack.Unmarshal(raw, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown compute phase variant")
}

func TestBouncePhaseVarDecode(t *testing.T) {
	raw := encodeVariant(t, 2, BouncePhaseOk{
		MsgFees: 7,
		FwdFees: 11,
	})

	var v BouncePhaseVar
	require.NoError(t, msgpack.Unmarshal(raw, &v))
	assert.Equal(t, uint8(2), v.Type)

	ok, isOk := v.Data.(BouncePhaseOk)
	require.True(t, isOk)
	assert.Equal(t, uint64(7), ok.MsgFees)
	assert.Equal(t, uint64(11), ok.FwdFees)
}

func u64(v uint64) *uint64 { return &v }

func sampleTransaction() *Transaction {
	return &Transaction{
		Hash:      "txhash",
		TotalFees: 500,
		InMsg:     &Message{Hash: "inhash", FwdFee: u64(10)},
		OutMsgs: []Message{
			{Hash: "out1", Value: u64(100)},
			{Hash: "out2", Value: u64(200)},
		},
		Description: TransactionDescr{
			StoragePh: StoragePhase{StorageFeesCollected: 20},
			ComputePh: ComputePhaseVar{
				Type: 1,
				Data: ComputePhaseVm{Success: true, GasFees: 300},
			},
			Action: &ActionPhase{Success: true, TotalFwdFees: u64(40)},
		},
	}
}

func TestResultFees(t *testing.T) {
	r := &Result{Transaction: sampleTransaction()}

	fees := r.Fees()
	assert.Equal(t, uint64(10), fees.InMsgFwdFee)
	assert.Equal(t, uint64(20), fees.StorageFee)
	assert.Equal(t, uint64(300), fees.GasFee)
	assert.Equal(t, uint64(40), fees.OutMsgsFwdFee)
	assert.Equal(t, uint64(500), fees.TotalAccountFees)
	assert.Equal(t, uint64(300), fees.TotalOutput)
}

func TestResultFeesNilTransaction(t *testing.T) {
	var r *Result
	assert.Equal(t, FeeReport{}, r.Fees())
	assert.Equal(t, FeeReport{}, (&Result{}).Fees())
}

func TestResultSuccessAndExitCode(t *testing.T) {
	r := &Result{Transaction: sampleTransaction()}
	assert.True(t, r.Success())
	assert.Equal(t, int32(0), r.ExitCode())

	tx := sampleTransaction()
	tx.Description.ComputePh.Data = ComputePhaseVm{Success: false, ExitCode: 414}
	r = &Result{Transaction: tx}
	assert.False(t, r.Success())
	assert.Equal(t, int32(414), r.ExitCode())

	tx = sampleTransaction()
	tx.Description.ComputePh = ComputePhaseVar{Type: 0, Data: ComputePhaseSkipped{Reason: ComputeSkipNoGas}}
	r = &Result{Transaction: tx}
	assert.False(t, r.Success())
	assert.Equal(t, int32(0), r.ExitCode())
}
