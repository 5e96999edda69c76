package abi

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tvmlabs/tonctl/internal/keys"
)

// Header carries the time-dependent function header of an external call.
type Header struct {
	Expire uint32 // unix seconds after which the message is invalid
	Time   uint64 // unix milliseconds, replay-protection component
}

// EncodeParams describes one message to encode.
type EncodeParams struct {
	Dest     *address.Address
	Function *Function
	Header   Header
	// Args is the JSON argument object produced by ParseParams. Empty means
	// a call without arguments.
	Args string
	// Signer signs the body when present; unsigned bodies carry a cleared
	// signature bit.
	Signer *keys.Keypair
}

// EncodedMessage is the wire form of a prepared call. Downstream stages
// consume it by value and never mutate it.
type EncodedMessage struct {
	BOC      []byte // serialized external-inbound message
	Body     []byte // serialized body cell, replayed as-is on failure
	ID       []byte // message cell representation hash
	ExpireAt uint32
}

// IDString returns the message identifier in hex.
func (m *EncodedMessage) IDString() string {
	return hex.EncodeToString(m.ID)
}

// EncodeExternalMessage builds and optionally signs the external-inbound
// message for a contract call. The body layout is: maybe-signature,
// maybe-pubkey (when the ABI declares it), declared header fields (time,
// expire), function id, then the arguments in declaration order.
func EncodeExternalMessage(p EncodeParams) (*EncodedMessage, error) {
	if p.Dest == nil {
		return nil, fmt.Errorf("destination address cannot be nil")
	}
	if p.Function == nil {
		return nil, fmt.Errorf("function cannot be nil")
	}

	args := map[string]interface{}{}
	if strings.TrimSpace(p.Args) != "" {
		if err := json.Unmarshal([]byte(p.Args), &args); err != nil {
			return nil, fmt.Errorf("arguments are not a valid JSON object: %w", err)
		}
	}

	// The payload is rebuilt for signing and for the final body; it is
	// deterministic for fixed inputs.
	payloadCell, err := encodePayload(p, args)
	if err != nil {
		return nil, err
	}

	body := cell.BeginCell()
	if p.Signer != nil {
		sig := p.Signer.Sign(payloadCell.Hash())
		if err := body.StoreBoolBit(true); err != nil {
			return nil, fmt.Errorf("failed to store signature bit: %w", err)
		}
		if err := body.StoreSlice(sig, 512); err != nil {
			return nil, fmt.Errorf("failed to store signature: %w", err)
		}
	} else {
		if err := body.StoreBoolBit(false); err != nil {
			return nil, fmt.Errorf("failed to store signature bit: %w", err)
		}
	}

	payload, err := encodePayloadBuilder(p, args)
	if err != nil {
		return nil, err
	}
	if err := body.StoreBuilder(payload); err != nil {
		return nil, fmt.Errorf("failed to assemble message body: %w", err)
	}
	bodyCell := body.EndCell()

	ext := &tlb.ExternalMessage{
		DstAddr: p.Dest,
		Body:    bodyCell,
	}
	msgCell, err := tlb.ToCell(ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbound message: %w", err)
	}

	return &EncodedMessage{
		BOC:      msgCell.ToBOC(),
		Body:     bodyCell.ToBOC(),
		ID:       msgCell.Hash(),
		ExpireAt: p.Header.Expire,
	}, nil
}

func encodePayload(p EncodeParams, args map[string]interface{}) (*cell.Cell, error) {
	b, err := encodePayloadBuilder(p, args)
	if err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func encodePayloadBuilder(p EncodeParams, args map[string]interface{}) (*cell.Builder, error) {
	c := p.Function.contract
	b := cell.BeginCell()

	if c != nil && c.HasHeader("pubkey") {
		if p.Signer != nil {
			if err := b.StoreBoolBit(true); err != nil {
				return nil, err
			}
			if err := b.StoreSlice(p.Signer.Public, 256); err != nil {
				return nil, fmt.Errorf("failed to store public key: %w", err)
			}
		} else {
			if err := b.StoreBoolBit(false); err != nil {
				return nil, err
			}
		}
	}
	if c == nil || c.HasHeader("time") {
		if err := b.StoreUInt(p.Header.Time, 64); err != nil {
			return nil, fmt.Errorf("failed to store time header: %w", err)
		}
	}
	if c == nil || c.HasHeader("expire") {
		if err := b.StoreUInt(uint64(p.Header.Expire), 32); err != nil {
			return nil, fmt.Errorf("failed to store expire header: %w", err)
		}
	}

	id, err := p.Function.InputID()
	if err != nil {
		return nil, err
	}
	if err := b.StoreUInt(uint64(id), 32); err != nil {
		return nil, fmt.Errorf("failed to store function id: %w", err)
	}

	for i := range p.Function.Inputs {
		input := &p.Function.Inputs[i]
		v, ok := args[input.Name]
		if !ok {
			return nil, fmt.Errorf("argument %q of type %q not found", input.Name, input.TypeName)
		}
		if err := encodeValue(b, input, v); err != nil {
			return nil, fmt.Errorf("argument %q of type %q: %w", input.Name, input.TypeName, err)
		}
	}

	return b, nil
}

func encodeValue(b *cell.Builder, p *Param, v interface{}) error {
	switch p.typ.Kind {
	case KindUint:
		n, err := toBigInt(v)
		if err != nil {
			return err
		}
		if n.Sign() < 0 {
			return fmt.Errorf("negative value %s for unsigned type", n)
		}
		return b.StoreBigUInt(n, p.typ.Bits)

	case KindInt:
		n, err := toBigInt(v)
		if err != nil {
			return err
		}
		return b.StoreBigInt(n, p.typ.Bits)

	case KindBool:
		bv, err := toBool(v)
		if err != nil {
			return err
		}
		return b.StoreBoolBit(bv)

	case KindAddress:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("address value must be a string")
		}
		addr, err := address.ParseAddr(s)
		if err != nil {
			return fmt.Errorf("couldn't decode address %q: %w", s, err)
		}
		return b.StoreAddr(addr)

	case KindCell:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("cell value must be a base64 BoC string")
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("cell value is not valid base64: %w", err)
		}
		ref, err := cell.FromBOC(raw)
		if err != nil {
			return fmt.Errorf("cell value is not a valid BoC: %w", err)
		}
		return b.StoreRef(ref)

	case KindBytes, KindString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s value must be a string", p.TypeName)
		}
		var raw []byte
		if p.typ.Kind == KindBytes {
			var err error
			raw, err = hex.DecodeString(s)
			if err != nil {
				return fmt.Errorf("bytes value is not valid hex: %w", err)
			}
		} else {
			raw = []byte(s)
		}
		if len(raw) > 127 {
			return fmt.Errorf("value of %d bytes exceeds the single-cell limit of 127", len(raw))
		}
		ref := cell.BeginCell()
		if err := ref.StoreSlice(raw, uint(len(raw))*8); err != nil {
			return err
		}
		return b.StoreRef(ref.EndCell())

	case KindArray:
		if !p.typ.IsUintArray() {
			return fmt.Errorf("unsupported array element type %q", p.typ.Elem)
		}
		items, err := toStringSlice(v)
		if err != nil {
			return err
		}
		dict := cell.NewDict(32)
		for i, item := range items {
			n, err := toBigInt(item)
			if err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			elem := cell.BeginCell()
			if err := elem.StoreBigUInt(n, p.typ.Elem.Bits); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			if err := dict.SetIntKey(big.NewInt(int64(i)), elem.EndCell()); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		if err := b.StoreUInt(uint64(len(items)), 32); err != nil {
			return err
		}
		return b.StoreDict(dict)

	default:
		return fmt.Errorf("type %q is not supported by the encoder", p.TypeName)
	}
}

// DecodeFunctionOutput decodes a return body against the function's declared
// outputs. It reports a mismatch when the body carries a different answer id.
func DecodeFunctionOutput(fn *Function, bodyBOC []byte) (map[string]interface{}, error) {
	body, err := cell.FromBOC(bodyBOC)
	if err != nil {
		return nil, fmt.Errorf("couldn't decode message body: %w", err)
	}
	s := body.BeginParse()

	id, err := s.LoadUInt(32)
	if err != nil {
		return nil, fmt.Errorf("couldn't read answer id: %w", err)
	}
	want, err := fn.OutputID()
	if err != nil {
		return nil, err
	}
	if uint32(id) != want {
		return nil, fmt.Errorf("answer id %08x does not match function %s", id, fn.Name)
	}

	return decodeValues(s, fn.Outputs)
}

// DecodeFunctionInput identifies the called function from an inbound body and
// decodes its arguments. It mirrors the layout produced by
// EncodeExternalMessage.
func DecodeFunctionInput(c *Contract, bodyBOC []byte) (string, map[string]interface{}, error) {
	body, err := cell.FromBOC(bodyBOC)
	if err != nil {
		return "", nil, fmt.Errorf("couldn't decode message body: %w", err)
	}
	s := body.BeginParse()

	signed, err := s.LoadBoolBit()
	if err != nil {
		return "", nil, fmt.Errorf("couldn't read signature bit: %w", err)
	}
	if signed {
		if _, err := s.LoadSlice(512); err != nil {
			return "", nil, fmt.Errorf("couldn't skip signature: %w", err)
		}
	}
	if c.HasHeader("pubkey") {
		hasKey, err := s.LoadBoolBit()
		if err != nil {
			return "", nil, fmt.Errorf("couldn't read pubkey bit: %w", err)
		}
		if hasKey {
			if _, err := s.LoadSlice(256); err != nil {
				return "", nil, fmt.Errorf("couldn't skip pubkey: %w", err)
			}
		}
	}
	if c.HasHeader("time") {
		if _, err := s.LoadUInt(64); err != nil {
			return "", nil, fmt.Errorf("couldn't read time header: %w", err)
		}
	}
	if c.HasHeader("expire") {
		if _, err := s.LoadUInt(32); err != nil {
			return "", nil, fmt.Errorf("couldn't read expire header: %w", err)
		}
	}

	id, err := s.LoadUInt(32)
	if err != nil {
		return "", nil, fmt.Errorf("couldn't read function id: %w", err)
	}

	for i := range c.Functions {
		fn := &c.Functions[i]
		inputID, err := fn.InputID()
		if err != nil {
			return "", nil, err
		}
		if inputID != uint32(id) {
			continue
		}
		args, err := decodeValues(s, fn.Inputs)
		if err != nil {
			return "", nil, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		return fn.Name, args, nil
	}

	return "", nil, fmt.Errorf("no function with id %08x in ABI", id)
}

func decodeValues(s *cell.Slice, params []Param) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for i := range params {
		p := &params[i]
		v, err := decodeValue(s, p)
		if err != nil {
			return nil, fmt.Errorf("parameter %q of type %q: %w", p.Name, p.TypeName, err)
		}
		out[p.Name] = v
	}
	return out, nil
}

func decodeValue(s *cell.Slice, p *Param) (interface{}, error) {
	switch p.typ.Kind {
	case KindUint:
		n, err := s.LoadBigUInt(p.typ.Bits)
		if err != nil {
			return nil, err
		}
		return n.String(), nil

	case KindInt:
		n, err := s.LoadBigInt(p.typ.Bits)
		if err != nil {
			return nil, err
		}
		return n.String(), nil

	case KindBool:
		return s.LoadBoolBit()

	case KindAddress:
		addr, err := s.LoadAddr()
		if err != nil {
			return nil, err
		}
		return addr.String(), nil

	case KindCell:
		ref, err := s.LoadRef()
		if err != nil {
			return nil, err
		}
		refCell, err := ref.ToCell()
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(refCell.ToBOC()), nil

	case KindBytes, KindString:
		ref, err := s.LoadRef()
		if err != nil {
			return nil, err
		}
		raw, err := ref.LoadSlice(ref.BitsLeft())
		if err != nil {
			return nil, err
		}
		if p.typ.Kind == KindBytes {
			return hex.EncodeToString(raw), nil
		}
		return string(raw), nil

	case KindArray:
		if !p.typ.IsUintArray() {
			return nil, fmt.Errorf("unsupported array element type %q", p.typ.Elem)
		}
		length, err := s.LoadUInt(32)
		if err != nil {
			return nil, err
		}
		dict, err := s.LoadDict(32)
		if err != nil {
			return nil, err
		}
		items := make([]string, 0, length)
		for i := uint64(0); i < length; i++ {
			elem := dict.GetByIntKey(big.NewInt(int64(i)))
			if elem == nil {
				return nil, fmt.Errorf("element %d missing from array dictionary", i)
			}
			n, err := elem.BeginParse().LoadBigUInt(p.typ.Elem.Bits)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, n.String())
		}
		return items, nil

	default:
		return nil, fmt.Errorf("type %q is not supported by the decoder", p.TypeName)
	}
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		base := 10
		if strings.HasPrefix(x, "0x") || strings.HasPrefix(x, "0X") {
			x = x[2:]
			base = 16
		}
		n, ok := new(big.Int).SetString(x, base)
		if !ok {
			return nil, fmt.Errorf("invalid integer value %q", v)
		}
		return n, nil
	case json.Number:
		n, ok := new(big.Int).SetString(x.String(), 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer value %q", x)
		}
		return n, nil
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("non-integral numeric value %v", x)
		}
		return big.NewInt(int64(x)), nil
	default:
		return nil, fmt.Errorf("unsupported integer value of type %T", v)
	}
}

func toBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, fmt.Errorf("invalid bool value %q", x)
	default:
		return false, fmt.Errorf("unsupported bool value of type %T", v)
	}
}

func toStringSlice(v interface{}) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("array element of type %T is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported array value of type %T", v)
	}
}
