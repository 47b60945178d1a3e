package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/chainctl/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"url": "https://a", "reachable": true}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, Options{Mode: "json", SelectFields: []string{"url"}, ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["url"] != "https://a" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["reachable"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderSelectNestedField(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data:    map[string]any{"receipt": map[string]any{"tx_hash": "0xabc", "status": "confirmed"}},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, Options{Mode: "json", SelectFields: []string{"receipt.tx_hash"}, ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if out["receipt.tx_hash"] != "0xabc" || len(out) != 1 {
		t.Fatalf("unexpected projection: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"url": "x", "latency_ms": 42}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, Options{Mode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "url=x") || !strings.Contains(buf.String(), "latency_ms=42") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderPlainError(t *testing.T) {
	env := model.Envelope{
		Success: false,
		Error: &model.ErrorBody{
			Code:    23,
			Type:    "transaction_reverted",
			Stage:   "confirm",
			Message: "transaction reverted",
			Reason:  "Too little received",
			TxHash:  "0x01",
		},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, Options{Mode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := "error[transaction_reverted/confirm]: transaction reverted reason=Too little received tx=0x01\n"
	if buf.String() != want {
		t.Fatalf("unexpected plain error\n got %q\nwant %q", buf.String(), want)
	}
}
