package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/chainctl/internal/errors"
)

// CheckCommandAllowed blocks commandPath unless the allowlist is empty or
// names it. A listed group such as "pool" also allows its subcommands.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		norm := normalize(allowed)
		if norm == normPath || strings.HasPrefix(normPath, norm+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// CheckWriteAllowed blocks commands that broadcast transactions when the
// client runs read-only.
func CheckWriteAllowed(readOnly bool, commandPath string, sendsTransactions bool) error {
	if !readOnly || !sendsTransactions {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("%q sends transactions and --read-only is set", normalize(commandPath)))
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
