package defi

import (
	"bytes"
	"math/big"
)

// flowEdge is one observed asset movement in the transaction's multigraph
// (spec.md 4.5: Transfer events, non-zero-value calls, WETH
// Withdrawal/Deposit).
type flowEdge struct {
	From, To []byte
	Asset    string
	Amount   *big.Int
}

type flowGraph struct {
	edges []flowEdge
}

func (g *flowGraph) addEdge(from, to []byte, asset string, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	g.edges = append(g.edges, flowEdge{From: from, To: to, Asset: asset, Amount: amount})
}

func (g *flowGraph) nodes() [][]byte {
	seen := make(map[string]bool)
	var out [][]byte
	for _, e := range g.edges {
		for _, n := range [][]byte{e.From, e.To} {
			key := string(n)
			if !seen[key] {
				seen[key] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func (g *flowGraph) degrees() (in, out map[string]int) {
	in = make(map[string]int)
	out = make(map[string]int)
	for _, e := range g.edges {
		out[string(e.From)]++
		in[string(e.To)]++
	}
	return in, out
}

// isWeaklyConnected checks the underlying undirected graph is connected.
func (g *flowGraph) isWeaklyConnected() bool {
	nodes := g.nodes()
	if len(nodes) <= 1 {
		return true
	}
	adj := make(map[string][]string)
	for _, e := range g.edges {
		f, t := string(e.From), string(e.To)
		adj[f] = append(adj[f], t)
		adj[t] = append(adj[t], f)
	}

	visited := make(map[string]bool)
	stack := []string{string(nodes[0])}
	visited[stack[0]] = true
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range adj[cur] {
			if !visited[n] {
				visited[n] = true
				stack = append(stack, n)
			}
		}
	}
	return len(visited) == len(nodes)
}

// isEulerian reports whether every node's in-degree equals its out-degree
// (the directed-graph condition for an Eulerian circuit, used here as the
// "flows balance" signal from spec.md 4.5).
func (g *flowGraph) isEulerian() bool {
	if len(g.edges) == 0 {
		return false
	}
	if !g.isWeaklyConnected() {
		return false
	}
	in, out := g.degrees()
	nodes := g.nodes()
	for _, n := range nodes {
		if in[string(n)] != out[string(n)] {
			return false
		}
	}
	return true
}

// pruneDegree1 removes edges incident to nodes matching the given
// (inDeg, outDeg) signature (spec.md 4.5 pruning passes).
func (g *flowGraph) pruneDegree1(wantIn, wantOut int) *flowGraph {
	in, out := g.degrees()
	pruneSet := make(map[string]bool)
	for _, n := range g.nodes() {
		key := string(n)
		if in[key] == wantIn && out[key] == wantOut {
			pruneSet[key] = true
		}
	}
	if len(pruneSet) == 0 {
		return g
	}
	next := &flowGraph{}
	for _, e := range g.edges {
		if pruneSet[string(e.From)] || pruneSet[string(e.To)] {
			continue
		}
		next.edges = append(next.edges, e)
	}
	return next
}

// singleInOutFlow returns a node's lone outgoing and incoming edges, if and
// only if it has exactly one of each (spec.md 4.5 swapper identification).
func (g *flowGraph) singleInOutFlow(node []byte) (outEdge, inEdge *flowEdge, ok bool) {
	var outs, ins []*flowEdge
	for i := range g.edges {
		e := &g.edges[i]
		if bytes.Equal(e.From, node) {
			outs = append(outs, e)
		}
		if bytes.Equal(e.To, node) {
			ins = append(ins, e)
		}
	}
	if len(outs) == 1 && len(ins) == 1 {
		return outs[0], ins[0], true
	}
	return nil, nil, false
}

// buildFlowGraph assembles the multigraph from the four sources listed in
// spec.md 4.5.
func buildFlowGraph(logs []DecodedLog, traces []ValueTrace, transfers []TokenTransfer, weth []byte) *flowGraph {
	g := &flowGraph{}
	for _, tr := range transfers {
		g.addEdge(tr.From, tr.To, tr.Asset, tr.Value)
	}
	for _, tr := range traces {
		g.addEdge(tr.From, tr.To, string(NativeSentinel[:]), tr.Value)
	}
	for _, l := range logs {
		if !bytes.Equal(l.Address, weth) {
			continue
		}
		switch l.Name {
		case "Withdrawal":
			src, _ := l.Parameters["src"].([]byte)
			wad, _ := l.Parameters["wad"].(*big.Int)
			g.addEdge(src, weth, "weth", wad)
		case "Deposit":
			dst, _ := l.Parameters["dst"].([]byte)
			wad, _ := l.Parameters["wad"].(*big.Int)
			g.addEdge(weth, dst, "weth", wad)
		}
	}
	return g
}

// identifySwapper applies spec.md 4.5's swapper rule: the top-level trace's
// from-address if it has exactly one outgoing and one incoming flow;
// otherwise the source of the first Transfer event.
func identifySwapper(g *flowGraph, topLevelFrom []byte, transfers []TokenTransfer) []byte {
	if topLevelFrom != nil {
		if _, _, ok := g.singleInOutFlow(topLevelFrom); ok {
			return topLevelFrom
		}
	}
	if len(transfers) > 0 {
		return transfers[0].From
	}
	return topLevelFrom
}

// extractEulerianSwap implements spec.md 4.5's eulerian-path heuristic.
func extractEulerianSwap(txHash string, topLevelFrom []byte, logs []DecodedLog, traces []ValueTrace, transfers []TokenTransfer, weth []byte) *ExternalSwap {
	g := buildFlowGraph(logs, traces, transfers, weth)
	if len(g.edges) == 0 {
		return nil
	}
	if !g.isWeaklyConnected() {
		return nil
	}

	lastLogIndex := 0
	if len(logs) > 0 {
		lastLogIndex = logs[len(logs)-1].LogIndex
	}
	swapLog := swapLogRef(txHash, lastLogIndex)

	if g.isEulerian() {
		return swapFromGraph(g, topLevelFrom, transfers, "swap", swapLog)
	}

	prunedOut := g.pruneDegree1(1, 0)
	if prunedOut != g && prunedOut.isEulerian() {
		return swapFromGraph(prunedOut, topLevelFrom, transfers, "swap-prune-dangling-out", swapLog)
	}

	prunedIn := g.pruneDegree1(0, 1)
	if prunedIn != g && prunedIn.isEulerian() {
		return swapFromGraph(prunedIn, topLevelFrom, transfers, "swap-prune-dangling-in", swapLog)
	}

	return swapFromGraph(g, topLevelFrom, transfers, "swap-non-eulerian", swapLog)
}

func swapFromGraph(g *flowGraph, topLevelFrom []byte, transfers []TokenTransfer, version, swapLog string) *ExternalSwap {
	swapper := identifySwapper(g, topLevelFrom, transfers)
	outEdge, inEdge, ok := g.singleInOutFlow(swapper)
	if !ok {
		return nil
	}
	return &ExternalSwap{
		Swapper:    swapper,
		FromAmount: outEdge.Amount,
		FromAsset:  outEdge.Asset,
		ToAmount:   inEdge.Amount,
		ToAsset:    inEdge.Asset,
		Version:    version,
		SwapLog:    swapLog,
	}
}
