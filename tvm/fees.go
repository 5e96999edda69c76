package tvm

// FeeReport breaks down the cost of one transaction the way fee estimation
// presents it.
type FeeReport struct {
	InMsgFwdFee      uint64 `json:"in_msg_fwd_fee"`
	StorageFee       uint64 `json:"storage_fee"`
	GasFee           uint64 `json:"gas_fee"`
	OutMsgsFwdFee    uint64 `json:"out_msgs_fwd_fee"`
	TotalAccountFees uint64 `json:"total_account_fees"`
	TotalOutput      uint64 `json:"total_output"`
}

// Fees aggregates the per-phase costs of the emulated transaction. A nil
// transaction yields a zero report.
func (r *Result) Fees() FeeReport {
	var report FeeReport
	if r == nil || r.Transaction == nil {
		return report
	}
	tx := r.Transaction

	if tx.InMsg != nil && tx.InMsg.FwdFee != nil {
		report.InMsgFwdFee = *tx.InMsg.FwdFee
	}
	report.StorageFee = tx.Description.StoragePh.StorageFeesCollected
	if vm, ok := tx.Description.ComputePh.Data.(ComputePhaseVm); ok {
		report.GasFee = vm.GasFees
	}
	if action := tx.Description.Action; action != nil && action.TotalFwdFees != nil {
		report.OutMsgsFwdFee = *action.TotalFwdFees
	}
	report.TotalAccountFees = tx.TotalFees
	for _, out := range tx.OutMsgs {
		if out.Value != nil {
			report.TotalOutput += *out.Value
		}
	}
	return report
}
