package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

// ErrorBody carries the failing stage for chain operations and, for reverts,
// the replay-derived reason.
type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Leg     string `json:"leg,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string     `json:"request_id"`
	Timestamp time.Time  `json:"timestamp"`
	Command   string     `json:"command"`
	Chain     *ChainMeta `json:"chain,omitempty"`
	LatencyMS int64      `json:"latency_ms"`
}

type ChainMeta struct {
	ChainID  int64  `json:"chain_id"`
	Family   string `json:"family,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

type EndpointPool struct {
	Family    string   `json:"family"`
	ChainID   int64    `json:"chain_id"`
	Endpoints []string `json:"endpoints"`
}

type Balance struct {
	Owner     string `json:"owner"`
	Token     string `json:"token"`
	Symbol    string `json:"symbol,omitempty"`
	BaseUnits string `json:"amount_base_units"`
	Decimal   string `json:"amount_decimal,omitempty"`
	Decimals  int    `json:"decimals,omitempty"`
}

type EncodedPath struct {
	Tokens      []string `json:"tokens"`
	Fees        []uint32 `json:"fees"`
	ExactOutput bool     `json:"exact_output"`
	Path        string   `json:"path"`
	Bytes       int      `json:"bytes"`
}

type Signature struct {
	Signer    string `json:"signer"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type Verification struct {
	Address string `json:"address"`
	Valid   bool   `json:"valid"`
}

type Approval struct {
	Token     string `json:"token"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
	TxHash    string `json:"tx_hash,omitempty"`
	Skipped   bool   `json:"skipped"`
}

type MonitorSummary struct {
	Family      string   `json:"family"`
	Endpoints   []string `json:"endpoints"`
	Active      string   `json:"active,omitempty"`
	MetricsAddr string   `json:"metrics_addr"`
	UptimeMS    int64    `json:"uptime_ms"`
}
