package params

// ChainConfig identifies the network a replica follows and where its central
// gateway lives.
type ChainConfig struct {
	// Name is the human readable network name.
	Name string `json:"name"`

	// ChainID is the network's chain identifier string.
	ChainID string `json:"chainId"`

	// GatewayURL is the base URL of the network's central gateway.
	GatewayURL string `json:"gatewayUrl"`
}

var (
	// MainnetChainConfig follows the main network.
	MainnetChainConfig = &ChainConfig{
		Name:       "mainnet",
		ChainID:    "SN_MAIN",
		GatewayURL: "https://alpha-mainnet.starknet.io/feeder_gateway",
	}

	// SepoliaChainConfig follows the Sepolia test network.
	SepoliaChainConfig = &ChainConfig{
		Name:       "sepolia",
		ChainID:    "SN_SEPOLIA",
		GatewayURL: "https://alpha-sepolia.starknet.io/feeder_gateway",
	}
)

// NetworkNames maps chain identifiers to their network names.
var NetworkNames = map[string]string{
	MainnetChainConfig.ChainID: MainnetChainConfig.Name,
	SepoliaChainConfig.ChainID: SepoliaChainConfig.Name,
}
