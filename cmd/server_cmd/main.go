package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/TEENet-io/bridge-indexer/agreement"
	"github.com/TEENet-io/bridge-indexer/chainsync"
	"github.com/TEENet-io/bridge-indexer/cmd"
	"github.com/TEENet-io/bridge-indexer/logconfig"
	"github.com/TEENet-io/bridge-indexer/registry"
	"github.com/TEENet-io/bridge-indexer/state"
)

const (
	ENV_CONFIG_FILE_PATH = "BRIDGE_INDEXER_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()
	setDefaults()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Indexer configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Indexer configuration file not found: %s\n", _config_file)
		os.Exit(1)
	}

	// Read from config file.
	if !initializeViper(_config_file) {
		os.Exit(1)
	}
	logconfig.ConfigLogger(viper.GetString("LOG_LEVEL"))

	// Make the configuration
	isc := PrepareIndexerServerConfig()

	fmt.Println("Starting indexer... press Ctrl+C to kill the server")
	// Start server and block.
	if err := cmd.StartIndexerServerAndWait(isc); err != nil {
		fmt.Printf("Indexer stopped: %v\n", err)
		os.Exit(1)
	}
}

func setDefaults() {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_FILE_PATH", "indexer.db")
	viper.SetDefault("VARA_RPC_NAMESPACE", "vara")
	viper.SetDefault("ETH_RPC_NAMESPACE", "eth")
	viper.SetDefault("VARA_RETRO_SCAN_BLK", -1)
	viper.SetDefault("ETH_RETRO_SCAN_BLK", -1)
	viper.SetDefault("INHERITOR_RPC_METHOD", registry.DefaultInheritorMethod)
	viper.SetDefault("BATCH_SIZE", chainsync.DefaultBatchSize)
	viper.SetDefault("MAX_BATCH_RETRIES", chainsync.DefaultMaxBatchRetries)
	viper.SetDefault("RETRY_BASE_DELAY", chainsync.DefaultRetryBaseDelay)
	viper.SetDefault("RETRY_MAX_DELAY", chainsync.DefaultRetryMaxDelay)
	viper.SetDefault("HTTP_IP", "0.0.0.0")
	viper.SetDefault("HTTP_PORT", "8080")
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s\n", err)
		return false
	}
	return true
}

// trackedPrograms maps config keys onto the programs seeded on first start.
var trackedPrograms = []struct {
	key     string
	network agreement.Network
	name    string
}{
	{"VARA_VFT_MANAGER", agreement.NetworkVara, registry.VftManager},
	{"VARA_HISTORICAL_PROXY", agreement.NetworkVara, registry.HistoricalProxy},
	{"VARA_BRIDGING_PAYMENT", agreement.NetworkVara, registry.BridgingPayment},
	{"VARA_CHECKPOINT_LIGHT_CLIENT", agreement.NetworkVara, registry.CheckpointLightClient},
	{"ETH_ERC20_MANAGER", agreement.NetworkEthereum, registry.Erc20Manager},
	{"ETH_BRIDGING_PAYMENT", agreement.NetworkEthereum, registry.BridgingPayment},
	{"ETH_MESSAGE_QUEUE", agreement.NetworkEthereum, registry.MessageQueue},
}

// PrepareIndexerServerConfig reads configuration variables and returns an IndexerServerConfig.
func PrepareIndexerServerConfig() *cmd.IndexerServerConfig {
	programs := []*state.Program{}
	for _, p := range trackedPrograms {
		addr := viper.GetString(p.key)
		if addr == "" {
			fmt.Printf("%s not configured, %s is not tracked until it is set\n", p.key, p.name)
			continue
		}
		programs = append(programs, &state.Program{Network: p.network, Name: p.name, Address: addr})
	}

	return &cmd.IndexerServerConfig{
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// chain side
		Vara: cmd.PipelineConfig{
			RpcUrl:       viper.GetString("VARA_RPC_URL"),
			RpcNamespace: viper.GetString("VARA_RPC_NAMESPACE"),
			StartBlk:     viper.GetUint64("VARA_START_BLK"),
			RetroScanBlk: viper.GetInt64("VARA_RETRO_SCAN_BLK"),
		},
		Ethereum: cmd.PipelineConfig{
			RpcUrl:       viper.GetString("ETH_RPC_URL"),
			RpcNamespace: viper.GetString("ETH_RPC_NAMESPACE"),
			StartBlk:     viper.GetUint64("ETH_START_BLK"),
			RetroScanBlk: viper.GetInt64("ETH_RETRO_SCAN_BLK"),
		},
		InheritorRpcUrl:    viper.GetString("INHERITOR_RPC_URL"),
		InheritorRpcMethod: viper.GetString("INHERITOR_RPC_METHOD"),
		Programs:           programs,
		// pipeline tuning
		FrequencyToCheckFinalizedBlock: viper.GetDuration("FREQUENCY_TO_CHECK_FINALIZED_BLOCK"),
		BatchSize:                      viper.GetUint64("BATCH_SIZE"),
		MaxBatchRetries:                viper.GetInt("MAX_BATCH_RETRIES"),
		RetryBaseDelay:                 viper.GetDuration("RETRY_BASE_DELAY"),
		RetryMaxDelay:                  viper.GetDuration("RETRY_MAX_DELAY"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}
