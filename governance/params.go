package governance

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// serializeParamWrapper turns the JSON value of a config parameter into its
// binary form: a wrapper cell whose first child reference is the canonical
// parameter cell. A plain JSON string is treated as a pre-serialized
// parameter cell in base64 BoC form, which covers parameters outside the
// structured schema below.
func serializeParamWrapper(num int32, value json.RawMessage) (*cell.Cell, error) {
	param, err := serializeParam(num, value)
	if err == nil {
		return wrap(param), nil
	}
	if !errors.Is(err, errUnknownParam) {
		return nil, err
	}

	// Parameters outside the structured schema are accepted pre-serialized,
	// as a base64 BoC string.
	var s string
	if jsonErr := json.Unmarshal(value, &s); jsonErr != nil {
		return nil, err
	}
	raw, b64Err := base64.StdEncoding.DecodeString(s)
	if b64Err != nil {
		return nil, fmt.Errorf("config parameter p%d: value is neither in the structured schema nor base64: %w", num, b64Err)
	}
	param, bocErr := cell.FromBOC(raw)
	if bocErr != nil {
		return nil, fmt.Errorf("config parameter p%d: value is not a valid BoC: %w", num, bocErr)
	}
	return wrap(param), nil
}

var errUnknownParam = errors.New("unknown config parameter number")

func wrap(param *cell.Cell) *cell.Cell {
	return cell.BeginCell().MustStoreRef(param).EndCell()
}

func serializeParam(num int32, value json.RawMessage) (*cell.Cell, error) {
	switch num {
	case 0, 1, 2, 3, 4:
		// Fundamental account parameters hold a 256-bit address hash.
		return serializeAddrHashParam(num, value)
	case 15:
		return serializeElectionTimings(value)
	case 16:
		return serializeValidatorCount(value)
	case 17:
		return serializeStakeParams(value)
	default:
		return nil, fmt.Errorf("%w %d", errUnknownParam, num)
	}
}

func serializeAddrHashParam(num int32, value json.RawMessage) (*cell.Cell, error) {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, fmt.Errorf("config parameter p%d: expected a hex address hash string: %w", num, err)
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("config parameter p%d: %q is not a hex address hash", num, s)
	}
	if n.BitLen() > 256 {
		return nil, fmt.Errorf("config parameter p%d: address hash exceeds 256 bits", num)
	}
	return cell.BeginCell().MustStoreBigUInt(n, 256).EndCell(), nil
}

func serializeElectionTimings(value json.RawMessage) (*cell.Cell, error) {
	var v struct {
		ValidatorsElectedFor uint32 `json:"validators_elected_for"`
		ElectionsStartBefore uint32 `json:"elections_start_before"`
		ElectionsEndBefore   uint32 `json:"elections_end_before"`
		StakeHeldFor         uint32 `json:"stake_held_for"`
	}
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, fmt.Errorf("config parameter p15: %w", err)
	}
	if v.ValidatorsElectedFor == 0 {
		return nil, fmt.Errorf("config parameter p15: validators_elected_for must be positive")
	}
	return cell.BeginCell().
		MustStoreUInt(uint64(v.ValidatorsElectedFor), 32).
		MustStoreUInt(uint64(v.ElectionsStartBefore), 32).
		MustStoreUInt(uint64(v.ElectionsEndBefore), 32).
		MustStoreUInt(uint64(v.StakeHeldFor), 32).
		EndCell(), nil
}

func serializeValidatorCount(value json.RawMessage) (*cell.Cell, error) {
	var v struct {
		MaxValidators     uint16 `json:"max_validators"`
		MaxMainValidators uint16 `json:"max_main_validators"`
		MinValidators     uint16 `json:"min_validators"`
	}
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, fmt.Errorf("config parameter p16: %w", err)
	}
	if v.MinValidators == 0 || v.MaxValidators < v.MinValidators {
		return nil, fmt.Errorf("config parameter p16: validator counts out of order")
	}
	return cell.BeginCell().
		MustStoreUInt(uint64(v.MaxValidators), 16).
		MustStoreUInt(uint64(v.MaxMainValidators), 16).
		MustStoreUInt(uint64(v.MinValidators), 16).
		EndCell(), nil
}

func serializeStakeParams(value json.RawMessage) (*cell.Cell, error) {
	var v struct {
		MinStake       string `json:"min_stake"`
		MaxStake       string `json:"max_stake"`
		MinTotalStake  string `json:"min_total_stake"`
		MaxStakeFactor uint32 `json:"max_stake_factor"`
	}
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, fmt.Errorf("config parameter p17: %w", err)
	}

	b := cell.BeginCell()
	for _, f := range []struct {
		name  string
		value string
	}{
		{"min_stake", v.MinStake},
		{"max_stake", v.MaxStake},
		{"min_total_stake", v.MinTotalStake},
	} {
		n, ok := new(big.Int).SetString(f.value, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("config parameter p17: %s %q is not a non-negative integer", f.name, f.value)
		}
		if err := b.StoreBigCoins(n); err != nil {
			return nil, fmt.Errorf("config parameter p17: %s: %w", f.name, err)
		}
	}
	b.MustStoreUInt(uint64(v.MaxStakeFactor), 32)
	return b.EndCell(), nil
}
