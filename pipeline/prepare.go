package pipeline

import (
	"time"

	"github.com/xssnick/tonutils-go/address"

	"github.com/tvmlabs/tonctl/abi"
	"github.com/tvmlabs/tonctl/internal/keys"
	"github.com/tvmlabs/tonctl/internal/metrics"
)

// CallRequest is the raw input of one contract call.
type CallRequest struct {
	Address  *address.Address
	Contract *abi.Contract
	Method   string
	// ParamTokens are CLI-style argument tokens, or a single JSON object.
	ParamTokens []string
	// Signer signs the message when present.
	Signer *keys.Keypair
}

// PreparedCall is an encoded, ready-to-submit call. It is immutable once
// built: every later stage reads it, none rewrites it.
type PreparedCall struct {
	Request  CallRequest
	Function *abi.Function
	Params   string
	Message  *abi.EncodedMessage
	ExpireAt time.Time
}

// Prepare validates the request and encodes the message. All validation
// happens here, before any network interaction.
func (p *Pipeline) Prepare(req CallRequest) (*PreparedCall, error) {
	if req.Address == nil {
		return nil, validationError("destination address is required")
	}
	if req.Contract == nil {
		return nil, validationError("contract ABI is required")
	}
	if req.Method == "" {
		return nil, validationError("method name is required")
	}

	fn, err := req.Contract.Function(req.Method)
	if err != nil {
		return nil, validationError("%v", err)
	}

	params, err := abi.ParseParams(req.ParamTokens, req.Contract, req.Method)
	if err != nil {
		return nil, validationError("%v", err)
	}

	now := time.Now()
	expireAt := now.Add(p.cfg.Lifetime())

	msg, err := abi.EncodeExternalMessage(abi.EncodeParams{
		Dest:     req.Address,
		Function: fn,
		Header: abi.Header{
			Time:   uint64(now.UnixMilli()),
			Expire: uint32(expireAt.Unix()),
		},
		Args:   params,
		Signer: req.Signer,
	})
	if err != nil {
		return nil, validationError("failed to encode message: %v", err)
	}

	metrics.IncrementCallsPrepared()
	metrics.SetLastExpireAt(expireAt)
	p.logger.Debug("prepared call %s to %s, message %s, expires %s",
		req.Method, req.Address.String(), msg.IDString(), expireAt.Format(time.RFC3339))

	return &PreparedCall{
		Request:  req,
		Function: fn,
		Params:   params,
		Message:  msg,
		ExpireAt: expireAt,
	}, nil
}
