// Package governance builds signed configuration-update messages for the
// config-holder account on the masterchain.
package governance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tvmlabs/tonctl/internal/keys"
)

// actionPrefix tags a config-update record. The config-holder contract
// rejects bodies that do not start with it.
const actionPrefix = 0x43665021

// timestampSkew is added to the build time so the record stays acceptable
// for a short window after construction. The field is a replay-protection
// nonce paired with the sequence number, not an expiration.
const timestampSkew = 100 * time.Second

// DefaultConfigAddress is the conventional config-holder account.
const DefaultConfigAddress = "-1:5555555555555555555555555555555555555555555555555555555555555555"

// UpdateParams describes one configuration update to build.
type UpdateParams struct {
	// ParamJSON is a single-key object of the form {"pNN": <value>}.
	ParamJSON []byte
	Seqno     uint32
	Signer    *keys.Keypair
	// ConfigAddr overrides DefaultConfigAddress when set.
	ConfigAddr *address.Address
	// Now overrides the build time, mainly for tests.
	Now time.Time
}

// UpdateMessage is a fully signed external-inbound config-update message.
type UpdateMessage struct {
	BOC         []byte
	Body        []byte
	ID          []byte
	ParamNumber int32
	Timestamp   uint32
}

// ParseParamJSON validates the single-key {"pNN": <value>} shape and returns
// the parameter number with its raw value.
func ParseParamJSON(raw []byte) (int32, json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, nil, fmt.Errorf("config parameter is not a valid JSON object: %w", err)
	}
	if len(obj) != 1 {
		return 0, nil, fmt.Errorf("config parameter object must have exactly one key, got %d", len(obj))
	}

	for key, value := range obj {
		if !strings.HasPrefix(key, "p") {
			return 0, nil, fmt.Errorf("config parameter key %q must start with 'p'", key)
		}
		num, err := strconv.ParseInt(strings.TrimPrefix(key, "p"), 10, 32)
		if err != nil {
			return 0, nil, fmt.Errorf("config parameter key %q has no parseable number: %w", key, err)
		}
		return int32(num), value, nil
	}
	return 0, nil, fmt.Errorf("config parameter object is empty")
}

// BuildUpdateMessage validates the parameter, serializes it, signs the update
// record and wraps it as an external-inbound message to the config holder.
// No partial message is returned on any error path.
func BuildUpdateMessage(p UpdateParams) (*UpdateMessage, error) {
	if p.Signer == nil {
		return nil, fmt.Errorf("governance key material is required")
	}
	if len(p.Signer.Private) == 0 {
		return nil, fmt.Errorf("governance key material is invalid: empty private key")
	}

	num, value, err := ParseParamJSON(p.ParamJSON)
	if err != nil {
		return nil, err
	}

	wrapper, err := serializeParamWrapper(num, value)
	if err != nil {
		return nil, err
	}
	// The serialized form is self-describing: the canonical parameter cell is
	// the wrapper's first child reference.
	paramCell, err := firstRef(wrapper)
	if err != nil {
		return nil, fmt.Errorf("config parameter p%d: %w", num, err)
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	ts := uint32(now.Add(timestampSkew).Unix())

	unsigned := cell.BeginCell().
		MustStoreUInt(actionPrefix, 32).
		MustStoreUInt(uint64(p.Seqno), 32).
		MustStoreUInt(uint64(ts), 32).
		MustStoreInt(int64(num), 32).
		MustStoreRef(paramCell).
		EndCell()

	sig := p.Signer.Sign(unsigned.Hash())

	body := cell.BeginCell().
		MustStoreSlice(sig, 512).
		MustStoreUInt(actionPrefix, 32).
		MustStoreUInt(uint64(p.Seqno), 32).
		MustStoreUInt(uint64(ts), 32).
		MustStoreInt(int64(num), 32).
		MustStoreRef(paramCell).
		EndCell()

	dst := p.ConfigAddr
	if dst == nil {
		dst, err = address.ParseRawAddr(DefaultConfigAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid config-holder address: %w", err)
		}
	}

	ext := &tlb.ExternalMessage{
		DstAddr: dst,
		Body:    body,
	}
	msgCell, err := tlb.ToCell(ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbound message: %w", err)
	}

	return &UpdateMessage{
		BOC:         msgCell.ToBOC(),
		Body:        body.ToBOC(),
		ID:          msgCell.Hash(),
		ParamNumber: num,
		Timestamp:   ts,
	}, nil
}

func firstRef(c *cell.Cell) (*cell.Cell, error) {
	ref, err := c.BeginParse().LoadRef()
	if err != nil {
		return nil, fmt.Errorf("serialized parameter has no child reference")
	}
	return ref.ToCell()
}
