package registry

// ABI fragments for the token, factory, pool, router, quoter and hub contracts the client talks to.
const (
	ERC20ABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
	]`

	V3FactoryABI = `[
		{"name":"getPool","type":"function","stateMutability":"view","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"outputs":[{"name":"","type":"address"}]}
	]`

	// V3SwapRouterABI is the deadline-carrying SwapRouter shape deployed by PancakeSwap v3
	// and the original Uniswap v3 periphery.
	V3SwapRouterABI = `[
		{"name":"WETH9","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"exactInputSingle","type":"function","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]},
		{"name":"exactInput","type":"function","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"path","type":"bytes"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]},
		{"name":"multicall","type":"function","stateMutability":"payable","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]},
		{"name":"unwrapWETH9","type":"function","stateMutability":"payable","inputs":[{"name":"amountMinimum","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[]}
	]`

	V3QuoterV2ABI = `[
		{"name":"quoteExactInput","type":"function","stateMutability":"nonpayable","inputs":[{"name":"path","type":"bytes"},{"name":"amountIn","type":"uint256"}],"outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96AfterList","type":"uint160[]"},{"name":"initializedTicksCrossedList","type":"uint32[]"},{"name":"gasEstimate","type":"uint256"}]},
		{"name":"quoteExactOutput","type":"function","stateMutability":"nonpayable","inputs":[{"name":"path","type":"bytes"},{"name":"amountOut","type":"uint256"}],"outputs":[{"name":"amountIn","type":"uint256"},{"name":"sqrtPriceX96AfterList","type":"uint160[]"},{"name":"initializedTicksCrossedList","type":"uint32[]"},{"name":"gasEstimate","type":"uint256"}]}
	]`

	// V3PoolABI decodes only the leading slot0 words, which PancakeSwap v3 and
	// Uniswap v3 pools share.
	V3PoolABI = `[
		{"name":"slot0","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"}]},
		{"name":"liquidity","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]}
	]`

	// HubABI is the agent registration and task contract.
	HubABI = `[
		{"name":"register","type":"function","stateMutability":"nonpayable","inputs":[{"name":"uuid","type":"string"}],"outputs":[]},
		{"name":"getAgent","type":"function","stateMutability":"view","inputs":[{"name":"uuid","type":"string"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"createTask","type":"function","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"string"},{"name":"price","type":"uint256"}],"outputs":[]},
		{"name":"getTask","type":"function","stateMutability":"view","inputs":[{"name":"taskId","type":"string"}],"outputs":[{"name":"finished","type":"bool"},{"name":"owner","type":"address"},{"name":"price","type":"uint256"},{"name":"value","type":"uint256"},{"name":"winner","type":"string"}]},
		{"name":"joinTask","type":"function","stateMutability":"payable","inputs":[{"name":"taskId","type":"string"},{"name":"uuid","type":"string"}],"outputs":[]},
		{"name":"finishTask","type":"function","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"string"},{"name":"uuid","type":"string"}],"outputs":[]},
		{"name":"getPermission","type":"function","stateMutability":"view","inputs":[{"name":"uuid","type":"string"},{"name":"auuid","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"buy","type":"function","stateMutability":"nonpayable","inputs":[{"name":"uuid","type":"string"},{"name":"auuid","type":"string"}],"outputs":[]}
	]`
)
