package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/chainctl/internal/errors"
)

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "pool find"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"pool find"}, "pool  find"); err != nil {
		t.Fatalf("expected command to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"endpoints"}, "endpoints check"); err != nil {
		t.Fatalf("expected group allowlist to cover subcommand: %v", err)
	}
	if err := CheckCommandAllowed([]string{"pool"}, "poolx"); err == nil {
		t.Fatal("group prefix must match whole words")
	}
	err := CheckCommandAllowed([]string{"balance"}, "swap")
	if !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestCheckWriteAllowed(t *testing.T) {
	if err := CheckWriteAllowed(true, "quote", false); err != nil {
		t.Fatalf("read command must pass in read-only mode: %v", err)
	}
	if err := CheckWriteAllowed(false, "swap", true); err != nil {
		t.Fatalf("write command must pass without read-only: %v", err)
	}
	if err := CheckWriteAllowed(true, "swap", true); !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}
