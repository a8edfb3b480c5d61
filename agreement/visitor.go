package agreement

// PayloadVisitor has one method per event category. A new category is a new
// method here, so every visitor stops compiling until it handles it.
type PayloadVisitor interface {
	VisitVaraBridgingRequested(ev *Event, p *VaraBridgingRequested) error
	VisitEthBridgingRequested(ev *Event, p *EthBridgingRequested) error
	VisitBridgingPaid(ev *Event, p *BridgingPaid) error
	VisitPriorityBridgingPaid(ev *Event, p *PriorityBridgingPaid) error
	VisitBridgingFailed(ev *Event, p *BridgingFailed) error
	VisitHistoricalProxyRelayed(ev *Event, p *HistoricalProxyRelayed) error
	VisitEthBridgeMessageQueued(ev *Event, p *EthBridgeMessageQueued) error
	VisitQueueMerkleRootChanged(ev *Event, p *QueueMerkleRootChanged) error
	VisitCheckpointAdded(ev *Event, p *CheckpointAdded) error
	VisitProgramChanged(ev *Event, p *ProgramChanged) error
	VisitTokenMappingAdded(ev *Event, p *TokenMappingAdded) error
	VisitTokenMappingRemoved(ev *Event, p *TokenMappingRemoved) error
	VisitMessageProcessed(ev *Event, p *MessageProcessed) error
	VisitMerkleRootSubmitted(ev *Event, p *MerkleRootSubmitted) error
}
