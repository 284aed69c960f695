package transformer

import (
	"math"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
)

// UTXOInput is a resolved transaction input: address plus its spent value
// (spec.md 4.7 resolves prev-output references to this shape before the
// Transformer sees them).
type UTXOInput struct {
	Address []byte
	Value   int64
}

// UTXOOutput is a transaction output with a single resolved address
// (multi-sig and null/nonstandard/unresolved outputs are filtered out
// before this point per spec.md 4.6 UTXO dialect).
type UTXOOutput struct {
	Address []byte
	Value   int64
}

// UTXOTxDelta is the per-transaction result of spec.md 4.6's UTXO dialect.
type UTXOTxDelta struct {
	Entities  []deltamodel.EntityDelta
	EntityTxs []deltamodel.RawEntityTx
	Relations []deltamodel.RelationDelta
}

// sumByAddress collapses repeated addresses in a side (inputs or outputs)
// into one summed value per address, preserving first-appearance order.
func sumByAddress(entries []struct {
	Address []byte
	Value   int64
}) (order [][]byte, sums map[string]int64) {
	sums = make(map[string]int64)
	seen := make(map[string]bool)
	for _, e := range entries {
		key := string(e.Address)
		if !seen[key] {
			seen[key] = true
			order = append(order, e.Address)
		}
		sums[key] += e.Value
	}
	return order, sums
}

func sumInputs(inputs []UTXOInput) ([][]byte, map[string]int64) {
	conv := make([]struct {
		Address []byte
		Value   int64
	}, len(inputs))
	for i, in := range inputs {
		conv[i] = struct {
			Address []byte
			Value   int64
		}{in.Address, in.Value}
	}
	return sumByAddress(conv)
}

func sumOutputs(outputs []UTXOOutput) ([][]byte, map[string]int64) {
	conv := make([]struct {
		Address []byte
		Value   int64
	}, len(outputs))
	for i, out := range outputs {
		conv[i] = struct {
			Address []byte
			Value   int64
		}{out.Address, out.Value}
	}
	return sumByAddress(conv)
}

// TransformUTXOTx implements spec.md 4.6's UTXO dialect for one
// transaction. totalInput is the transaction's total input value
// including any filtered-out (multi-sig / nonstandard) inputs, needed to
// compute reduced_input_sum.
func TransformUTXOTx(txID int64, inputs []UTXOInput, outputs []UTXOOutput, totalInput int64) UTXOTxDelta {
	inOrder, regIn := sumInputs(inputs)
	outOrder, regOut := sumOutputs(outputs)

	allAddrs := make(map[string]bool)
	addrOrder := make([][]byte, 0, len(inOrder)+len(outOrder))
	for _, a := range inOrder {
		if !allAddrs[string(a)] {
			allAddrs[string(a)] = true
			addrOrder = append(addrOrder, a)
		}
	}
	for _, a := range outOrder {
		if !allAddrs[string(a)] {
			allAddrs[string(a)] = true
			addrOrder = append(addrOrder, a)
		}
	}

	flows := make(map[string]int64, len(addrOrder))
	for key := range allAddrs {
		flows[key] = regOut[key] - regIn[key]
	}

	var sumRegIn, sumInputFlows int64
	for _, a := range inOrder {
		key := string(a)
		sumRegIn += regIn[key]
		sumInputFlows += flows[key]
	}
	reducedInputSum := totalInput - (sumRegIn + sumInputFlows)

	var result UTXOTxDelta
	for _, a := range inOrder {
		result.Entities = append(result.Entities, deltamodel.EntityDelta{
			Identifier: a, TotalSpent: deltamodel.Value{Value: regIn[string(a)]},
			FirstTxID: txID, LastTxID: txID, NoOutgoingTxs: 1,
		})
	}
	for _, a := range outOrder {
		result.Entities = append(result.Entities, deltamodel.EntityDelta{
			Identifier: a, TotalReceived: deltamodel.Value{Value: regOut[string(a)]},
			FirstTxID: txID, LastTxID: txID, NoIncomingTxs: 1,
		})
	}

	for _, a := range addrOrder {
		flow := flows[string(a)]
		result.EntityTxs = append(result.EntityTxs, deltamodel.RawEntityTx{
			Identifier: a, IsOutgoing: flow < 0, TxID: txID, Value: flow,
		})
	}

	if reducedInputSum != 0 {
		for _, ia := range inOrder {
			for _, oa := range outOrder {
				if string(ia) == string(oa) {
					continue
				}
				iflow := flows[string(ia)]
				oflow := flows[string(oa)]
				estimated := estimateRelationValue(iflow, oflow, reducedInputSum)
				result.Relations = append(result.Relations, deltamodel.RelationDelta{
					Src: ia, Dst: oa, NoTransactions: 1,
					Value: deltamodel.Value{Value: estimated},
				})
			}
		}
	}

	return result
}

// estimateRelationValue implements spec.md 4.6's UTXO relation estimate:
// abs(round((flows[in]/reduced_input_sum) * flows[out])).
func estimateRelationValue(inFlow, outFlow, reducedInputSum int64) int64 {
	if reducedInputSum == 0 {
		return 0
	}
	ratio := float64(inFlow) / float64(reducedInputSum)
	v := ratio * float64(outFlow)
	return int64(math.Round(math.Abs(v)))
}
