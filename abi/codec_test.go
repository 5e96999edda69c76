package abi

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tvmlabs/tonctl/internal/keys"
)

func testDestination(t *testing.T) *address.Address {
	t.Helper()
	return address.NewAddress(0, 0, make([]byte, 32))
}

func TestEncodeExternalMessageSigned(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("addOrdinaryStake")
	require.NoError(t, err)

	kp, err := keys.Generate()
	require.NoError(t, err)

	msg, err := EncodeExternalMessage(EncodeParams{
		Dest:     testDestination(t),
		Function: fn,
		Header:   Header{Time: 1700000000000, Expire: 1700000100},
		Args:     `{"stake":"12345"}`,
		Signer:   kp,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.BOC)
	assert.NotEmpty(t, msg.Body)
	assert.Len(t, msg.ID, 32)
	assert.Equal(t, uint32(1700000100), msg.ExpireAt)
	assert.Len(t, msg.IDString(), 64)

	name, args, err := DecodeFunctionInput(c, msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "addOrdinaryStake", name)
	assert.Equal(t, "12345", args["stake"])
}

func TestEncodeExternalMessageUnsigned(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("transfer")
	require.NoError(t, err)

	dest := testDestination(t)
	msg, err := EncodeExternalMessage(EncodeParams{
		Dest:     dest,
		Function: fn,
		Header:   Header{Time: 1700000000000, Expire: 1700000100},
		Args: fmt.Sprintf(`{"dest":%q,"value":"1000000000","bounce":"true"}`,
			dest.String()),
	})
	require.NoError(t, err)

	name, args, err := DecodeFunctionInput(c, msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "transfer", name)
	assert.Equal(t, "1000000000", args["value"])
	assert.Equal(t, true, args["bounce"])

	decoded, err := address.ParseAddr(args["dest"].(string))
	require.NoError(t, err)
	assert.Equal(t, dest.Data(), decoded.Data())
	assert.Equal(t, dest.Workchain(), decoded.Workchain())
}

func TestEncodeExternalMessageDeterministic(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("addOrdinaryStake")
	require.NoError(t, err)

	p := EncodeParams{
		Dest:     testDestination(t),
		Function: fn,
		Header:   Header{Time: 42, Expire: 43},
		Args:     `{"stake":"1"}`,
	}

	a, err := EncodeExternalMessage(p)
	require.NoError(t, err)
	b, err := EncodeExternalMessage(p)
	require.NoError(t, err)

	assert.Equal(t, a.BOC, b.BOC)
	assert.Equal(t, a.ID, b.ID)
}

func TestEncodeExternalMessageMissingArgument(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("addOrdinaryStake")
	require.NoError(t, err)

	_, err = EncodeExternalMessage(EncodeParams{
		Dest:     testDestination(t),
		Function: fn,
		Args:     `{}`,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `argument "stake" of type "uint64" not found`)
}

func TestEncodeExternalMessageBadArguments(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("addOrdinaryStake")
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{"not json", `--stake 1`, "not a valid JSON object"},
		{"negative for unsigned", `{"stake":"-1"}`, "negative value"},
		{"not a number", `{"stake":"abc"}`, "invalid integer value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeExternalMessage(EncodeParams{
				Dest:     testDestination(t),
				Function: fn,
				Args:     tt.args,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodeFunctionOutput(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("getInfo")
	require.NoError(t, err)

	outID, err := fn.OutputID()
	require.NoError(t, err)

	owner := testDestination(t)
	body := cell.BeginCell().
		MustStoreUInt(uint64(outID), 32).
		MustStoreUInt(777, 64).
		MustStoreAddr(owner).
		MustStoreBoolBit(true).
		EndCell()

	out, err := DecodeFunctionOutput(fn, body.ToBOC())
	require.NoError(t, err)
	assert.Equal(t, "777", out["total"])
	assert.Equal(t, true, out["active"])

	decoded, err := address.ParseAddr(out["owner"].(string))
	require.NoError(t, err)
	assert.Equal(t, owner.Data(), decoded.Data())
}

func TestDecodeFunctionOutputWrongID(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("getInfo")
	require.NoError(t, err)

	body := cell.BeginCell().MustStoreUInt(0xDEADBEEF, 32).EndCell()
	_, err = DecodeFunctionOutput(fn, body.ToBOC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match function getInfo")
}

func TestArrayRoundTrip(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("setNumbers")
	require.NoError(t, err)

	msg, err := EncodeExternalMessage(EncodeParams{
		Dest:     testDestination(t),
		Function: fn,
		Header:   Header{Time: 1, Expire: 2},
		Args:     `{"values":["1","2","4294967295"]}`,
	})
	require.NoError(t, err)

	name, args, err := DecodeFunctionInput(c, msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "setNumbers", name)
	assert.Equal(t, []string{"1", "2", "4294967295"}, args["values"])
}

func TestEncodeDecodeRoundTripProperty(t *testing.T) {
	c := loadTestContract(t)
	fn, err := c.Function("addOrdinaryStake")
	require.NoError(t, err)

	kp, err := keys.Generate()
	require.NoError(t, err)
	dest := testDestination(t)

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("stake survives encode and decode", prop.ForAll(
		func(stake uint64) bool {
			msg, err := EncodeExternalMessage(EncodeParams{
				Dest:     dest,
				Function: fn,
				Header:   Header{Time: 1700000000000, Expire: 1700000100},
				Args:     fmt.Sprintf(`{"stake":"%d"}`, stake),
				Signer:   kp,
			})
			if err != nil {
				return false
			}
			name, args, err := DecodeFunctionInput(c, msg.Body)
			if err != nil || name != "addOrdinaryStake" {
				return false
			}
			return args["stake"] == fmt.Sprintf("%d", stake)
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
