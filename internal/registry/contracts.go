package registry

// Deployment is the set of v3 DEX contracts a chain client is configured against.
type Deployment struct {
	Factory         string
	Router          string
	PositionManager string
	QuoterV2        string
	WrappedNative   string
	// Hub is the agent registration and task contract, when one is deployed.
	Hub string
}

// Known PancakeSwap v3 deployments by chain ID. Other chains must supply addresses explicitly.
var v3DeploymentsByChainID = map[int64]Deployment{
	56: {
		Factory:         "0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865",
		Router:          "0x1b81D678ffb9C0263b24A97847620C99d213eB14",
		PositionManager: "0x46A15B0b27311cedF172AB29E4f4766fbE7F4364",
		QuoterV2:        "0xB048Bbc1Ee6b733FFfCFb9e9CeF7375518e25997",
		WrappedNative:   "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
	},
	97: {
		Factory:         "0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865",
		Router:          "0x1b81D678ffb9C0263b24A97847620C99d213eB14",
		PositionManager: "0x427bF5b37357632377eCbEC9de3626C71A5396c1",
		QuoterV2:        "0xbC203d7f83677c7ed3F7acEc959963E7F4ECC5C2",
		WrappedNative:   "0xae13d989daC2f0dEbFf460aC112a837C89BAa7cd",
		Hub:             "0x100E3F8c5285df46A8B9edF6b38B8f90F1C32B7b",
	},
}

func V3Deployment(chainID int64) (Deployment, bool) {
	d, ok := v3DeploymentsByChainID[chainID]
	return d, ok
}

// NativeTokenSentinel is the conventional placeholder address for a chain's native asset.
const NativeTokenSentinel = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
