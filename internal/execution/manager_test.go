package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/chainctl/internal/endpoint"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/execution/signer"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeChain answers the JSON-RPC subset the execution manager uses.
type fakeChain struct {
	*httptest.Server

	receiptStatus   uint64
	withholdReceipt bool
	withholdUntil   time.Time
	revertReason    string

	mu        sync.Mutex
	sent      *types.Transaction
	callBlock string
	sends     atomic.Int64
}

func newFakeChain(t *testing.T, configure ...func(*fakeChain)) *fakeChain {
	t.Helper()
	c := &fakeChain{receiptStatus: types.ReceiptStatusSuccessful, revertReason: "boom"}
	for _, fn := range configure {
		fn(c)
	}
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Close)
	return c
}

func (c *fakeChain) serve(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch req.Method {
	case "eth_chainId":
		writeRPCRaw(w, req.ID, `"0x61"`)
	case "eth_getTransactionCount":
		writeRPCRaw(w, req.ID, `"0x7"`)
	case "eth_gasPrice":
		writeRPCRaw(w, req.ID, `"0x3b9aca00"`)
	case "eth_sendRawTransaction":
		var raw string
		_ = json.Unmarshal(req.Params[0], &raw)
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(common.FromHex(raw)); err != nil {
			writeRPCError(w, req.ID, -32000, err.Error(), "")
			return
		}
		c.mu.Lock()
		c.sent = tx
		c.mu.Unlock()
		c.sends.Add(1)
		writeRPCRaw(w, req.ID, fmt.Sprintf("%q", tx.Hash().Hex()))
	case "eth_getTransactionReceipt":
		tx := c.sentTx()
		if tx == nil || c.withholdReceipt || time.Now().Before(c.withholdUntil) {
			writeRPCRaw(w, req.ID, "null")
			return
		}
		receipt := &types.Receipt{
			Status:            c.receiptStatus,
			TxHash:            tx.Hash(),
			GasUsed:           21_000,
			EffectiveGasPrice: big.NewInt(1_000_000_000),
			BlockNumber:       big.NewInt(100),
			BlockHash:         common.HexToHash("0x01"),
			Logs:              []*types.Log{},
		}
		buf, _ := json.Marshal(receipt)
		writeRPCRaw(w, req.ID, string(buf))
	case "eth_getTransactionByHash":
		tx := c.sentTx()
		if tx == nil {
			writeRPCRaw(w, req.ID, "null")
			return
		}
		buf, _ := tx.MarshalJSON()
		fields := map[string]any{}
		_ = json.Unmarshal(buf, &fields)
		fields["blockNumber"] = "0x64"
		fields["blockHash"] = common.HexToHash("0x01").Hex()
		from, _ := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		fields["from"] = from.Hex()
		out, _ := json.Marshal(fields)
		writeRPCRaw(w, req.ID, string(out))
	case "eth_call":
		var block string
		if len(req.Params) > 1 {
			_ = json.Unmarshal(req.Params[1], &block)
		}
		c.mu.Lock()
		c.callBlock = block
		c.mu.Unlock()
		writeRPCError(w, req.ID, 3, "execution reverted", hexutil.Encode(encodeErrorString(c.revertReason)))
	default:
		writeRPCError(w, req.ID, -32601, "method not supported in test: "+req.Method, "")
	}
}

func (c *fakeChain) sentTx() *types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func writeRPCRaw(w http.ResponseWriter, id json.RawMessage, result string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, rawIDOrDefault(id), result)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message, data string) {
	w.Header().Set("Content-Type", "application/json")
	if data == "" {
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawIDOrDefault(id), code, message)
		return
	}
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q,"data":%q}}`, rawIDOrDefault(id), code, message, data)
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}

func encodeErrorString(reason string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	return append(common.FromHex("0x08c379a0"), packed...)
}

func newTestExecution(t *testing.T, chain *fakeChain, s signer.Signer, opts Options) *Manager {
	t.Helper()
	conns := endpoint.NewWithPool(endpoint.Pool{Family: "bsc-testnet", Endpoints: []string{chain.URL}}, endpoint.Options{})
	t.Cleanup(conns.Close)
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	return NewManager(conns, s, opts)
}

func testSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	return s
}

func TestSendConfirmed(t *testing.T) {
	chain := newFakeChain(t)
	s := testSigner(t)
	m := newTestExecution(t, chain, s, Options{SerializeNonces: true})

	router := common.HexToAddress("0x1b81D678ffb9C0263b24A97847620C99d213eB14")
	receipt, err := m.Send(context.Background(), Call{To: router, Data: []byte{0x01, 0x02}, Value: big.NewInt(5)})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if receipt.Status != StateConfirmed {
		t.Fatalf("expected confirmed receipt, got %+v", receipt)
	}
	if receipt.GasFee != "21000000000000" {
		t.Fatalf("unexpected gas fee %s", receipt.GasFee)
	}

	tx := chain.sentTx()
	if tx.Nonce() != 7 || tx.Gas() != DefaultGasLimit || tx.Value().Int64() != 5 {
		t.Fatalf("unexpected tx fields nonce=%d gas=%d value=%s", tx.Nonce(), tx.Gas(), tx.Value())
	}
	if tx.GasPrice().Int64() != 1_000_000_000 {
		t.Fatalf("expected suggested gas price, got %s", tx.GasPrice())
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(97)), tx)
	if err != nil || from != s.Address() {
		t.Fatalf("expected sender %s, got %s (err=%v)", s.Address().Hex(), from.Hex(), err)
	}
	if receipt.TxHash != tx.Hash().Hex() {
		t.Fatalf("receipt hash %s does not match broadcast %s", receipt.TxHash, tx.Hash().Hex())
	}
}

func TestSendRevertedCarriesDecodedReason(t *testing.T) {
	chain := newFakeChain(t, func(c *fakeChain) {
		c.receiptStatus = types.ReceiptStatusFailed
		c.revertReason = "Too little received"
	})
	m := newTestExecution(t, chain, testSigner(t), Options{ChainID: 97})

	receipt, err := m.Send(context.Background(), Call{To: common.HexToAddress("0x01")})
	if !clierr.Is(err, clierr.CodeTransactionReverted) {
		t.Fatalf("expected TransactionReverted, got %v", err)
	}
	cliErr, _ := clierr.As(err)
	if cliErr.Reason != "Too little received" {
		t.Fatalf("unexpected revert reason %q", cliErr.Reason)
	}
	if cliErr.TxHash == "" || cliErr.TxHash != receipt.TxHash {
		t.Fatalf("expected error to carry tx hash, got %q vs %q", cliErr.TxHash, receipt.TxHash)
	}
	if cliErr.Stage != clierr.StageConfirm {
		t.Fatalf("expected confirm stage, got %s", cliErr.Stage)
	}
	if receipt.Status != StateReverted {
		t.Fatalf("expected reverted receipt, got %s", receipt.Status)
	}
	chain.mu.Lock()
	block := chain.callBlock
	chain.mu.Unlock()
	if block != "0x63" {
		t.Fatalf("expected replay at block 99, got %q", block)
	}
}

type failingSigner struct{ addr common.Address }

func (f failingSigner) Address() common.Address { return f.addr }

func (f failingSigner) SignTx(*big.Int, *types.Transaction) (*types.Transaction, error) {
	return nil, errors.New("hardware wallet unplugged")
}

func TestSubmitSigningFailureNeverBroadcasts(t *testing.T) {
	chain := newFakeChain(t)
	m := newTestExecution(t, chain, failingSigner{addr: common.HexToAddress("0x02")}, Options{ChainID: 97})

	_, err := m.Send(context.Background(), Call{To: common.HexToAddress("0x01")})
	if !clierr.Is(err, clierr.CodeSigningFailed) {
		t.Fatalf("expected SigningFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "unplugged") {
		t.Fatalf("expected signer cause in error, got %v", err)
	}
	if chain.sends.Load() != 0 {
		t.Fatalf("expected no broadcast, got %d", chain.sends.Load())
	}
}

func TestSendReceiptTimeout(t *testing.T) {
	chain := newFakeChain(t, func(c *fakeChain) { c.withholdReceipt = true })
	m := newTestExecution(t, chain, testSigner(t), Options{ChainID: 97, ReceiptTimeout: 50 * time.Millisecond})

	_, err := m.Send(context.Background(), Call{To: common.HexToAddress("0x01")})
	if !clierr.Is(err, clierr.CodeReceiptTimeout) {
		t.Fatalf("expected ReceiptTimeout, got %v", err)
	}
	cliErr, _ := clierr.As(err)
	if cliErr.TxHash != chain.sentTx().Hash().Hex() {
		t.Fatalf("expected timeout to carry tx hash, got %q", cliErr.TxHash)
	}
}

func TestSendLooksOnceMoreAtReceiptDeadline(t *testing.T) {
	// Polls land at ~0 and ~400ms; the next would pass the 600ms deadline.
	chain := newFakeChain(t, func(c *fakeChain) { c.withholdUntil = time.Now().Add(500 * time.Millisecond) })
	m := newTestExecution(t, chain, testSigner(t), Options{
		ChainID:        97,
		PollInterval:   400 * time.Millisecond,
		ReceiptTimeout: 600 * time.Millisecond,
	})

	receipt, err := m.Send(context.Background(), Call{To: common.HexToAddress("0x01")})
	if err != nil {
		t.Fatalf("expected the receipt from the final fetch, got %v", err)
	}
	if receipt.Status != StateConfirmed {
		t.Fatalf("expected confirmed receipt, got %+v", receipt)
	}
}

func TestSendReleasesNonceLockBeforeReceiptWait(t *testing.T) {
	chain := newFakeChain(t, func(c *fakeChain) { c.withholdReceipt = true })
	s := testSigner(t)
	m := newTestExecution(t, chain, s, Options{ChainID: 97, SerializeNonces: true, ReceiptTimeout: 2 * time.Second})

	sendDone := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), Call{To: common.HexToAddress("0x01")})
		sendDone <- err
	}()

	deadline := time.Now().Add(time.Second)
	for chain.sends.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("transaction was never broadcast")
		}
		time.Sleep(5 * time.Millisecond)
	}

	acquired := make(chan struct{})
	go func() {
		release := acquireSignerNonceLock(97, s.Address())
		release()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("nonce lock still held while waiting for the receipt")
	}

	if err := <-sendDone; !clierr.Is(err, clierr.CodeReceiptTimeout) {
		t.Fatalf("expected ReceiptTimeout, got %v", err)
	}
}

func TestReceiptRejectsMalformedHash(t *testing.T) {
	chain := newFakeChain(t)
	m := newTestExecution(t, chain, testSigner(t), Options{ChainID: 97})
	if _, err := m.Receipt(context.Background(), "0x1234"); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestDecodeRevertData(t *testing.T) {
	if got := decodeRevertData(encodeErrorString("STF")); got != "STF" {
		t.Fatalf("expected Error(string) reason, got %q", got)
	}

	panicData := append(common.FromHex("0x4e487b71"), common.LeftPadBytes([]byte{0x11}, 32)...)
	if got := decodeRevertData(panicData); got == "" || strings.HasPrefix(got, "custom error") {
		t.Fatalf("expected panic reason, got %q", got)
	}

	if got := decodeRevertData(common.FromHex("0xdeadbeef")); got != "custom error 0xdeadbeef" {
		t.Fatalf("unexpected custom error rendering %q", got)
	}
	if got := decodeRevertData(nil); got != "" {
		t.Fatalf("expected empty reason for empty data, got %q", got)
	}
}

func TestDecodeRevertFromErrorFallsBackToMessage(t *testing.T) {
	if got := decodeRevertFromError(errors.New("execution reverted: Transaction too old")); got != "Transaction too old" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := decodeRevertFromError(errors.New("execution reverted")); got != "execution reverted" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := decodeRevertFromError(errors.New("out of gas")); got != "out of gas" {
		t.Fatalf("unexpected reason %q", got)
	}
}

func TestNonceLockSerializesSameAccount(t *testing.T) {
	addr := common.HexToAddress("0x03")
	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := acquireSignerNonceLock(97, addr)
			defer release()
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("expected one holder at a time, saw %d", peak.Load())
	}

	releaseA := acquireSignerNonceLock(97, addr)
	releaseB := acquireSignerNonceLock(56, addr)
	releaseB()
	releaseA()
}
