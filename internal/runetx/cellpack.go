package runetx

import (
	"errors"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/u128"
)

// ErrEmptyCalldata is returned when a protostone's message carries fewer
// than the two varints (target block and tx) a target needs — there is no
// target to resolve.
var ErrEmptyCalldata = errors.New("runetx: empty cellpack calldata")

// Cellpack is the decoded calldata `{target, inputs}` passed to a message:
// target.block, target.tx, then inputs as a varint list.
type Cellpack struct {
	Target alkaneid.AlkaneId
	Inputs []u128.Uint128
}

// ParseCellpack decodes a Protostone.Message into a Cellpack. A malformed or
// short calldata varint stream is a decode error: the message is skipped
// without any ledger change.
func ParseCellpack(message []byte) (Cellpack, error) {
	values, err := DecodeVarintList(message)
	if err != nil {
		return Cellpack{}, err
	}
	if len(values) < 2 {
		return Cellpack{}, ErrEmptyCalldata
	}
	return Cellpack{
		Target: alkaneid.AlkaneId{Block: values[0].Lo, Tx: values[1].Lo},
		Inputs: append([]u128.Uint128{}, values[2:]...),
	}, nil
}

// Encode is the inverse of ParseCellpack, used by tests that build
// synthetic transactions and simulate requests.
func (c Cellpack) Encode() []byte {
	values := make([]u128.Uint128, 0, 2+len(c.Inputs))
	values = append(values, u128.FromUint64(c.Target.Block), u128.FromUint64(c.Target.Tx))
	values = append(values, c.Inputs...)
	return EncodeVarintList(values)
}
