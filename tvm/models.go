package tvm

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// The wire models below mirror the msgpack layout the executor service emits.
// Field tags are part of the protocol and must not change.

type AccountStatus int

const (
	AccountStatusUninit AccountStatus = iota
	AccountStatusFrozen
	AccountStatusActive
	AccountStatusNonexist
)

type AccStatusChange int

const (
	AccStatusUnchanged AccStatusChange = iota
	AccStatusFrozen
	AccStatusDeleted
)

type ComputeSkipReason int

const (
	ComputeSkipNoState ComputeSkipReason = iota
	ComputeSkipBadState
	ComputeSkipNoGas
	ComputeSkipSuspended
)

type StoragePhase struct {
	StorageFeesCollected uint64          `msgpack:"storage_fees_collected"`
	StorageFeesDue       *uint64         `msgpack:"storage_fees_due"`
	StatusChange         AccStatusChange `msgpack:"status_change"`
}

type CreditPhase struct {
	DueFeesCollected *uint64 `msgpack:"due_fees_collected"`
	Credit           uint64  `msgpack:"credit"`
}

type ComputePhaseSkipped struct {
	Reason ComputeSkipReason `msgpack:"reason"`
}

type ComputePhaseVm struct {
	Success          bool    `msgpack:"success"`
	MsgStateUsed     bool    `msgpack:"msg_state_used"`
	AccountActivated bool    `msgpack:"account_activated"`
	GasFees          uint64  `msgpack:"gas_fees"`
	GasUsed          uint64  `msgpack:"gas_used"`
	GasLimit         uint64  `msgpack:"gas_limit"`
	GasCredit        *uint64 `msgpack:"gas_credit"`
	Mode             int8    `msgpack:"mode"`
	ExitCode         int32   `msgpack:"exit_code"`
	ExitArg          *int32  `msgpack:"exit_arg"`
	VmSteps          uint32  `msgpack:"vm_steps"`
	VmInitStateHash  string  `msgpack:"vm_init_state_hash"`
	VmFinalStateHash string  `msgpack:"vm_final_state_hash"`
}

type StorageUsedShort struct {
	Cells uint64 `msgpack:"cells"`
	Bits  uint64 `msgpack:"bits"`
}

type ActionPhase struct {
	Success         bool             `msgpack:"success"`
	Valid           bool             `msgpack:"valid"`
	NoFunds         bool             `msgpack:"no_funds"`
	StatusChange    AccStatusChange  `msgpack:"status_change"`
	TotalFwdFees    *uint64          `msgpack:"total_fwd_fees"`
	TotalActionFees *uint64          `msgpack:"total_action_fees"`
	ResultCode      int32            `msgpack:"result_code"`
	ResultArg       *int32           `msgpack:"result_arg"`
	TotActions      uint16           `msgpack:"tot_actions"`
	SpecActions     uint16           `msgpack:"spec_actions"`
	SkippedActions  uint16           `msgpack:"skipped_actions"`
	MsgsCreated     uint16           `msgpack:"msgs_created"`
	ActionListHash  string           `msgpack:"action_list_hash"`
	TotMsgSize      StorageUsedShort `msgpack:"tot_msg_size"`
}

type BouncePhaseNegfunds struct {
	Dummy bool `msgpack:"dummy"`
}

type BouncePhaseNofunds struct {
	MsgSize    StorageUsedShort `msgpack:"msg_size"`
	ReqFwdFees uint64           `msgpack:"req_fwd_fees"`
}

type BouncePhaseOk struct {
	MsgSize StorageUsedShort `msgpack:"msg_size"`
	MsgFees uint64           `msgpack:"msg_fees"`
	FwdFees uint64           `msgpack:"fwd_fees"`
}

type Message struct {
	Hash         string  `msgpack:"hash"`
	Source       *string `msgpack:"source"`
	Destination  *string `msgpack:"destination"`
	Value        *uint64 `msgpack:"value"`
	FwdFee       *uint64 `msgpack:"fwd_fee"`
	IhrFee       *uint64 `msgpack:"ihr_fee"`
	CreatedLt    *uint64 `msgpack:"created_lt"`
	CreatedAt    *uint32 `msgpack:"created_at"`
	Opcode       *int32  `msgpack:"opcode"`
	IhrDisabled  *bool   `msgpack:"ihr_disabled"`
	Bounce       *bool   `msgpack:"bounce"`
	Bounced      *bool   `msgpack:"bounced"`
	ImportFee    *uint64 `msgpack:"import_fee"`
	BodyBoc      string  `msgpack:"body_boc"`
	InitStateBoc *string `msgpack:"init_state_boc"`
}

type TransactionDescr struct {
	CreditFirst bool            `msgpack:"credit_first"`
	StoragePh   StoragePhase    `msgpack:"storage_ph"`
	CreditPh    CreditPhase     `msgpack:"credit_ph"`
	ComputePh   ComputePhaseVar `msgpack:"compute_ph"`
	Action      *ActionPhase    `msgpack:"action"`
	Aborted     bool            `msgpack:"aborted"`
	Bounce      *BouncePhaseVar `msgpack:"bounce"`
	Destroyed   bool            `msgpack:"destroyed"`
}

type Transaction struct {
	Hash                   string           `msgpack:"hash"`
	Account                string           `msgpack:"account"`
	Lt                     uint64           `msgpack:"lt"`
	PrevTransHash          string           `msgpack:"prev_trans_hash"`
	PrevTransLt            uint64           `msgpack:"prev_trans_lt"`
	Now                    uint32           `msgpack:"now"`
	OrigStatus             AccountStatus    `msgpack:"orig_status"`
	EndStatus              AccountStatus    `msgpack:"end_status"`
	InMsg                  *Message         `msgpack:"in_msg"`
	OutMsgs                []Message        `msgpack:"out_msgs"`
	TotalFees              uint64           `msgpack:"total_fees"`
	AccountStateHashBefore string           `msgpack:"account_state_hash_before"`
	AccountStateHashAfter  string           `msgpack:"account_state_hash_after"`
	Description            TransactionDescr `msgpack:"description"`
}

// ComputePhaseVar is a tagged union: index 0 is ComputePhaseSkipped, index 1
// is ComputePhaseVm.
type ComputePhaseVar struct {
	Type uint8
	Data interface{}
}

var _ msgpack.CustomDecoder = (*ComputePhaseVar)(nil)

func (s *ComputePhaseVar) DecodeMsgpack(dec *msgpack.Decoder) error {
	index, err := decodeVariantIndex(dec)
	if err != nil {
		return err
	}

	switch index {
	case 0:
		var v ComputePhaseSkipped
		err = dec.Decode(&v)
		s.Data = v
	case 1:
		var v ComputePhaseVm
		err = dec.Decode(&v)
		s.Data = v
	default:
		return fmt.Errorf("unknown compute phase variant index: %d", index)
	}

	s.Type = index
	return err
}

// BouncePhaseVar is a tagged union: index 0 is BouncePhaseNegfunds, index 1
// is BouncePhaseNofunds, index 2 is BouncePhaseOk.
type BouncePhaseVar struct {
	Type uint8
	Data interface{}
}

var _ msgpack.CustomDecoder = (*BouncePhaseVar)(nil)

func (s *BouncePhaseVar) DecodeMsgpack(dec *msgpack.Decoder) error {
	index, err := decodeVariantIndex(dec)
	if err != nil {
		return err
	}

	switch index {
	case 0:
		var v BouncePhaseNegfunds
		err = dec.Decode(&v)
		s.Data = v
	case 1:
		var v BouncePhaseNofunds
		err = dec.Decode(&v)
		s.Data = v
	case 2:
		var v BouncePhaseOk
		err = dec.Decode(&v)
		s.Data = v
	default:
		return fmt.Errorf("unknown bounce phase variant index: %d", index)
	}

	s.Type = index
	return err
}

func decodeVariantIndex(dec *msgpack.Decoder) (uint8, error) {
	length, err := dec.DecodeArrayLen()
	if err != nil {
		return 0, err
	}
	if length != 2 {
		return 0, fmt.Errorf("invalid variant array length: %d", length)
	}
	return dec.DecodeUint8()
}
