package main

import (
	"fmt"

	"github.com/colorfulnotion/zylith/client"
	"github.com/colorfulnotion/zylith/felt"
	"github.com/colorfulnotion/zylith/storage"
	"github.com/xlab/treeprint"
)

// diagnosisTree lays out every probed token candidate under the pool address.
func diagnosisTree(pool felt.Felt, d client.PoolDiagnosis) treeprint.Tree {
	tree := treeprint.NewWithRoot(fmt.Sprintf("pool %s", pool.Padded()))
	tree.AddNode(fmt.Sprintf("initialized: %v", d.Initialized))
	addAttempts(tree.AddBranch(client.FieldToken0), d.Token0)
	addAttempts(tree.AddBranch(client.FieldToken1), d.Token1)
	return tree
}

func addAttempts(branch treeprint.Tree, attempts []storage.Attempt) {
	for _, a := range attempts {
		node := branch.AddBranch(a.Candidate.Name)
		node.AddNode(fmt.Sprintf("address: %s", a.Candidate.Address.Padded()))
		switch a.Outcome {
		case storage.OutcomeValue:
			node.AddNode(fmt.Sprintf("value: %s", a.Value.Short()))
		case storage.OutcomeZero:
			node.AddNode("value: 0")
		default:
			node.AddNode(fmt.Sprintf("%s: %v", a.Outcome, a.Err))
		}
		node.AddNode(fmt.Sprintf("elapsed: %s", a.Elapsed))
	}
}
