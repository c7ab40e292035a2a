package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/stellar/go/xdr"
)

// scValToString converts an ScVal to a string representation
func scValToString(val xdr.ScVal) string {
	switch val.Type {
	case xdr.ScValTypeScvSymbol:
		return string(val.MustSym())
	case xdr.ScValTypeScvString:
		return string(val.MustStr())
	case xdr.ScValTypeScvAddress:
		str, _ := val.MustAddress().String()
		return str
	case xdr.ScValTypeScvBytes:
		return hex.EncodeToString(val.MustBytes())
	default:
		return fmt.Sprint(scValToInterface(val))
	}
}

// scValToInterface converts an ScVal into plain Go values. Integers wider
// than 64 bits become decimal strings; bytes become hex.
func scValToInterface(val xdr.ScVal) any {
	switch val.Type {
	case xdr.ScValTypeScvBool:
		return val.MustB()
	case xdr.ScValTypeScvVoid:
		return nil
	case xdr.ScValTypeScvU32:
		return uint64(val.MustU32())
	case xdr.ScValTypeScvI32:
		return int64(val.MustI32())
	case xdr.ScValTypeScvU64:
		return uint64(val.MustU64())
	case xdr.ScValTypeScvI64:
		return int64(val.MustI64())
	case xdr.ScValTypeScvTimepoint:
		return uint64(val.MustTimepoint())
	case xdr.ScValTypeScvU128:
		u128 := val.MustU128()
		return joinParts(new(big.Int).SetUint64(uint64(u128.Hi)), uint64(u128.Lo)).String()
	case xdr.ScValTypeScvI128:
		i128 := val.MustI128()
		return joinParts(big.NewInt(int64(i128.Hi)), uint64(i128.Lo)).String()
	case xdr.ScValTypeScvSymbol:
		return string(val.MustSym())
	case xdr.ScValTypeScvString:
		return string(val.MustStr())
	case xdr.ScValTypeScvAddress:
		str, _ := val.MustAddress().String()
		return str
	case xdr.ScValTypeScvBytes:
		return hex.EncodeToString(val.MustBytes())
	case xdr.ScValTypeScvVec:
		vec := val.MustVec()
		if vec == nil {
			return []any{}
		}
		result := make([]any, len(*vec))
		for i, element := range *vec {
			result[i] = scValToInterface(element)
		}
		return result
	case xdr.ScValTypeScvMap:
		scMap := val.MustMap()
		result := make(map[string]any)
		if scMap == nil {
			return result
		}
		for _, entry := range *scMap {
			result[scValToString(entry.Key)] = scValToInterface(entry.Val)
		}
		return result
	default:
		return val.Type.String()
	}
}

// joinParts computes hi*2^64 + lo
func joinParts(hi *big.Int, lo uint64) *big.Int {
	v := new(big.Int).Lsh(hi, 64)
	return v.Add(v, new(big.Int).SetUint64(lo))
}
