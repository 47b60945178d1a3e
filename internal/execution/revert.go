package execution

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

var errorStringSelector = common.FromHex("0x08c379a0")

// decodeRevertData turns EVM revert return data into a readable reason.
// Error(string) and Panic(uint256) payloads are decoded; custom errors are
// reported by selector.
func decodeRevertData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	if len(data) >= 4 && !bytes.Equal(data[:4], errorStringSelector) {
		return fmt.Sprintf("custom error 0x%s", hex.EncodeToString(data[:4]))
	}
	return "undecodable revert data 0x" + hex.EncodeToString(data)
}

// decodeRevertFromError extracts a reason from a failed eth_call. Nodes attach
// revert data through rpc.DataError; otherwise the message is trimmed of the
// generic "execution reverted" prefix.
func decodeRevertFromError(err error) string {
	if err == nil {
		return ""
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if reason := decodeRevertData(common.FromHex(raw)); reason != "" {
				return reason
			}
		}
	}
	msg := strings.TrimSpace(err.Error())
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		rest := strings.TrimSpace(strings.TrimPrefix(msg[idx+len("execution reverted"):], ":"))
		if rest != "" {
			return rest
		}
		return "execution reverted"
	}
	return msg
}
