package state

const (
	// one row per cross-chain transfer
	transferTable = `CREATE TABLE IF NOT EXISTS transfer (
		id CHAR(32) PRIMARY KEY NOT NULL,
		nonce VARCHAR(80) UNIQUE NOT NULL,
		sourceNetwork VARCHAR(8) NOT NULL,
		destNetwork VARCHAR(8) NOT NULL,
		source VARCHAR(66) NOT NULL,
		destination VARCHAR(66) NOT NULL,
		sender VARCHAR(66) NOT NULL,
		receiver VARCHAR(66) NOT NULL,
		amount TEXT NOT NULL,
		status VARCHAR(16) NOT NULL,
		txHash VARCHAR(66) NOT NULL,
		blockNumber INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		bridgingStartedAtBlock INTEGER,
		bridgingStartedAtTxHash VARCHAR(66),
		completedAt INTEGER,
		completedAtBlock INTEGER,
		completedAtTxHash VARCHAR(66),
		isPriorityFeePaid BOOLEAN NOT NULL DEFAULT 0,
		CONSTRAINT chk_status CHECK (status IN ('AwaitingPayment', 'Bridging', 'Completed', 'Failed')),
		CONSTRAINT chk_networks CHECK (sourceNetwork IN ('Vara', 'Ethereum') AND destNetwork IN ('Vara', 'Ethereum') AND sourceNetwork != destNetwork),
		CONSTRAINT chk_nonce CHECK (nonce != ''),
		CONSTRAINT chk_amount CHECK (amount != '')
	);
	CREATE INDEX IF NOT EXISTS idx_transfer_status ON transfer (status);
	CREATE INDEX IF NOT EXISTS idx_transfer_sender ON transfer (sender);`

	pairTable = `CREATE TABLE IF NOT EXISTS pair (
		id CHAR(32) PRIMARY KEY NOT NULL,
		varaToken VARCHAR(66) NOT NULL,
		varaTokenSymbol VARCHAR(32) NOT NULL,
		varaTokenName VARCHAR(128) NOT NULL,
		varaTokenDecimals INTEGER NOT NULL,
		ethToken VARCHAR(42) NOT NULL,
		ethTokenSymbol VARCHAR(32) NOT NULL,
		ethTokenName VARCHAR(128) NOT NULL,
		ethTokenDecimals INTEGER NOT NULL,
		tokenSupply VARCHAR(8) NOT NULL,
		isActive BOOLEAN NOT NULL,
		isRemoved BOOLEAN NOT NULL DEFAULT 0,
		activeSinceBlock INTEGER NOT NULL,
		activeToBlock INTEGER,
		upgradedTo CHAR(32),
		CONSTRAINT chk_supply CHECK (tokenSupply IN ('Vara', 'Ethereum'))
	);
	CREATE INDEX IF NOT EXISTS idx_pair_varaToken ON pair (varaToken);
	CREATE INDEX IF NOT EXISTS idx_pair_ethToken ON pair (ethToken);`

	messageTable = `CREATE TABLE IF NOT EXISTS gearEthBridgeMessage (
		hash VARCHAR(66) PRIMARY KEY NOT NULL,
		nonce VARCHAR(80) NOT NULL,
		source VARCHAR(66) NOT NULL,
		destination VARCHAR(42) NOT NULL,
		blockNumber INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);`

	merkleRootTable = `CREATE TABLE IF NOT EXISTS merkleRootInMessageQueue (
		blockNumber INTEGER PRIMARY KEY NOT NULL,
		merkleRoot VARCHAR(66) NOT NULL,
		timestamp INTEGER NOT NULL,
		submittedAtBlock INTEGER,
		submittedAtTxHash VARCHAR(66)
	);`

	slotTable = `CREATE TABLE IF NOT EXISTS checkpointSlot (
		slot INTEGER PRIMARY KEY NOT NULL,
		treeHashRoot VARCHAR(66) NOT NULL,
		blockNumber INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);`

	programTable = `CREATE TABLE IF NOT EXISTS program (
		network VARCHAR(8) NOT NULL,
		name VARCHAR(64) NOT NULL,
		address VARCHAR(66) NOT NULL,
		updatedAtBlock INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (network, name)
	);`

	// every address a tracked program ever had
	programHistoryTable = `CREATE TABLE IF NOT EXISTS programHistory (
		network VARCHAR(8) NOT NULL,
		name VARCHAR(64) NOT NULL,
		address VARCHAR(66) NOT NULL,
		sinceBlock INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (network, name, address)
	);
	INSERT OR IGNORE INTO programHistory (network, name, address, sinceBlock)
		SELECT network, name, address, updatedAtBlock FROM program;`

	// updates observed by one pipeline for a transfer the other pipeline has
	// not created yet, keyed by nonce
	pendingUpdateTable = `CREATE TABLE IF NOT EXISTS pendingUpdate (
		nonce VARCHAR(80) PRIMARY KEY NOT NULL,
		network VARCHAR(8) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT '',
		bridgingStartedAtBlock INTEGER,
		bridgingStartedAtTxHash VARCHAR(66),
		completedAt INTEGER,
		completedAtBlock INTEGER,
		completedAtTxHash VARCHAR(66),
		isPriorityFeePaid BOOLEAN NOT NULL DEFAULT 0
	);`

	// table stores key-value pairs, e.g. the last processed block per network
	kvTable = `CREATE TABLE IF NOT EXISTS kv (
		key VARCHAR(64) PRIMARY KEY NOT NULL,
		value TEXT NOT NULL
	);`

	transferColumns = ` id, nonce, sourceNetwork, destNetwork, source, destination, sender, receiver, amount, status,
		txHash, blockNumber, timestamp, bridgingStartedAtBlock, bridgingStartedAtTxHash,
		completedAt, completedAtBlock, completedAtTxHash, isPriorityFeePaid `

	pairColumns = ` id, varaToken, varaTokenSymbol, varaTokenName, varaTokenDecimals,
		ethToken, ethTokenSymbol, ethTokenName, ethTokenDecimals, tokenSupply,
		isActive, isRemoved, activeSinceBlock, activeToBlock, upgradedTo `
)

func schema() string {
	return transferTable + pairTable + messageTable + merkleRootTable + slotTable + programTable + programHistoryTable +
		pendingUpdateTable + kvTable
}
