// Copyright (c) 2017-2018 The nox developers

package blockchain

// ForkWarning describes a condition suggesting the node or the network is
// on the wrong chain.
type ForkWarning int

const (
	// ForkWarningNone means no suspicious fork is known.
	ForkWarningNone ForkWarning = iota

	// ForkWarningLargeFork means a valid competing branch carrying a lot
	// of work forked off recently.
	ForkWarningLargeFork

	// ForkWarningInvalidChain means a chain with considerably more work than
	// the active one failed validation.
	ForkWarningInvalidChain
)

func (w ForkWarning) String() string {
	switch w {
	case ForkWarningNone:
		return "none"
	case ForkWarningLargeFork:
		return "large-work fork"
	case ForkWarningInvalidChain:
		return "invalid chain with more work"
	}
	return "unknown"
}

// checkForkWarningConditions updates the fork warning after newNode was
// accepted off the active chain, or after a block failed validation when
// newNode is nil.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) checkForkWarningConditions(newNode *BlockNode) {
	tip := b.bestChain.Tip()
	p := b.params

	if newNode != nil && !b.bestChain.Contains(newNode) && !newNode.status.KnownInvalid() {
		fork := b.bestChain.FindFork(newNode)
		if fork != nil && newNode.workSum-fork.workSum > uint64(p.LargeForkLength) &&
			tip.height-fork.height < p.LargeForkWindow &&
			(b.bestForkTip == nil || workLess(b.bestForkTip, newNode)) {
			b.bestForkTip = newNode
			b.bestForkBase = fork
		}
	}

	// Forget a fork that fell too far behind the tip.
	if b.bestForkTip != nil && tip.height >= b.bestForkTip.height+p.LargeForkWindow {
		b.bestForkTip = nil
		b.bestForkBase = nil
	}

	warning := ForkWarningNone
	switch {
	case b.bestInvalid != nil && b.bestInvalid.workSum > tip.workSum+uint64(p.InvalidChainLead):
		warning = ForkWarningInvalidChain
	case b.bestForkTip != nil:
		warning = ForkWarningLargeFork
	}
	if warning != b.forkWarning && warning != ForkWarningNone {
		switch warning {
		case ForkWarningInvalidChain:
			log.Warn("Found invalid chain with more work, the local node may "+
				"need to upgrade or other nodes are misbehaving",
				"invalid", b.bestInvalid.hash, "height", b.bestInvalid.height,
				"tip", tip.hash, "tipheight", tip.height)
		case ForkWarningLargeFork:
			log.Warn("Found large-work fork", "forktip", b.bestForkTip.hash,
				"height", b.bestForkTip.height, "forkbase", b.bestForkBase.hash,
				"baseheight", b.bestForkBase.height)
		}
	}
	b.forkWarning = warning
}

// ForkWarning returns the current fork warning condition.
//
// This function is safe for concurrent access.
func (b *BlockChain) ForkWarning() ForkWarning {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return b.forkWarning
}
