// Package hub drives the agent registration and task contract. Agents claim an
// id for the sending account, task owners create priced tasks, agents join by
// paying the task price and the owner finishes a task naming its winner.
//
// Writes check contract state first and skip when the state already holds, so
// repeating a command is safe.
package hub

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chainctl/internal/endpoint"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/execution"
	"github.com/ggonzalez94/chainctl/internal/registry"
	"go.uber.org/zap"
)

var hubABI = mustABI(registry.HubABI)

// Connections hands out read connections. *endpoint.Manager satisfies it.
type Connections interface {
	Acquire(ctx context.Context) (*endpoint.Connection, error)
}

// Executor submits transactions for the agent account. *execution.Manager
// satisfies it.
type Executor interface {
	Address() common.Address
	Send(ctx context.Context, call execution.Call) (execution.Receipt, error)
}

type Options struct {
	Contract common.Address
	// GasLimit overrides the executor default for hub writes.
	GasLimit uint64
	Logger   *zap.Logger
}

type Hub struct {
	conns    Connections
	exec     Executor
	contract common.Address
	gasLimit uint64
	log      *zap.Logger
}

// Task is the on-chain state of one task. An unknown task has a zero owner.
type Task struct {
	ID       string         `json:"task_id"`
	Finished bool           `json:"finished"`
	Owner    common.Address `json:"owner"`
	Price    string         `json:"price"`
	Value    string         `json:"value"`
	Winner   string         `json:"winner,omitempty"`
}

func (t Task) exists() bool { return t.Owner != (common.Address{}) }

// Outcome reports a hub write. Skipped writes carry no receipt.
type Outcome struct {
	Action  string             `json:"action"`
	Skipped bool               `json:"skipped"`
	Reason  string             `json:"reason,omitempty"`
	Receipt *execution.Receipt `json:"receipt,omitempty"`
}

func New(conns Connections, exec Executor, opts Options) (*Hub, error) {
	if opts.Contract == (common.Address{}) {
		return nil, clierr.New(clierr.CodeUsage, "hub contract address is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		conns:    conns,
		exec:     exec,
		contract: opts.Contract,
		gasLimit: opts.GasLimit,
		log:      log.Named("hub"),
	}, nil
}

func (h *Hub) Contract() common.Address { return h.contract }

// Agent returns the account that registered agentID, or the zero address.
func (h *Hub) Agent(ctx context.Context, agentID string) (common.Address, error) {
	if err := requireID("agent id", agentID); err != nil {
		return common.Address{}, err
	}
	out, err := h.call(ctx, "getAgent", agentID)
	if err != nil {
		return common.Address{}, err
	}
	addr, _ := out[0].(common.Address)
	return addr, nil
}

func (h *Hub) Task(ctx context.Context, taskID string) (Task, error) {
	if err := requireID("task id", taskID); err != nil {
		return Task{}, err
	}
	out, err := h.call(ctx, "getTask", taskID)
	if err != nil {
		return Task{}, err
	}
	if len(out) < 5 {
		return Task{}, clierr.New(clierr.CodeUnavailable, "decode getTask: short result")
	}
	task := Task{ID: taskID}
	task.Finished, _ = out[0].(bool)
	task.Owner, _ = out[1].(common.Address)
	price, _ := out[2].(*big.Int)
	value, _ := out[3].(*big.Int)
	task.Price = bigString(price)
	task.Value = bigString(value)
	task.Winner, _ = out[4].(string)
	return task, nil
}

// HasPermission reports the contract's own grant of id to agentID.
func (h *Hub) HasPermission(ctx context.Context, id, agentID string) (bool, error) {
	if err := requireID("id", id); err != nil {
		return false, err
	}
	if err := requireID("agent id", agentID); err != nil {
		return false, err
	}
	out, err := h.call(ctx, "getPermission", id, agentID)
	if err != nil {
		return false, err
	}
	ok, _ := out[0].(bool)
	return ok, nil
}

// HasAuth reports whether agentID may act on id: an explicit permission, or
// agentID being registered by the account that owns task id.
func (h *Hub) HasAuth(ctx context.Context, id, agentID string) (bool, error) {
	ok, err := h.HasPermission(ctx, id, agentID)
	if err != nil || ok {
		return ok, err
	}
	task, err := h.Task(ctx, id)
	if err != nil {
		return false, err
	}
	if !task.exists() {
		return false, nil
	}
	agent, err := h.Agent(ctx, agentID)
	if err != nil {
		return false, err
	}
	return agent == task.Owner, nil
}

// Register claims agentID for the sending account. It is a no-op when the
// account already holds the id and a Conflict when another account does.
func (h *Hub) Register(ctx context.Context, agentID string) (Outcome, error) {
	owner, err := h.Agent(ctx, agentID)
	if err != nil {
		return Outcome{}, err
	}
	switch owner {
	case h.exec.Address():
		return skipped("register", "agent already registered by this account"), nil
	case common.Address{}:
	default:
		return Outcome{}, clierr.Conflict(fmt.Sprintf("agent %q is registered by %s", agentID, owner.Hex()))
	}
	return h.send(ctx, "register", nil, agentID)
}

// CreateTask opens taskID with the given join price in wei.
func (h *Hub) CreateTask(ctx context.Context, taskID string, price *big.Int) (Outcome, error) {
	if price == nil || price.Sign() < 0 {
		return Outcome{}, clierr.New(clierr.CodeUsage, "task price must not be negative")
	}
	task, err := h.Task(ctx, taskID)
	if err != nil {
		return Outcome{}, err
	}
	switch task.Owner {
	case h.exec.Address():
		return skipped("create_task", "task already created by this account"), nil
	case common.Address{}:
	default:
		return Outcome{}, clierr.Conflict(fmt.Sprintf("task %q is owned by %s", taskID, task.Owner.Hex()))
	}
	return h.send(ctx, "createTask", nil, taskID, price)
}

// JoinTask enrolls agentID in taskID, paying the task price as the
// transaction value.
func (h *Hub) JoinTask(ctx context.Context, taskID, agentID string) (Outcome, error) {
	joined, err := h.HasPermission(ctx, taskID, agentID)
	if err != nil {
		return Outcome{}, err
	}
	if joined {
		return skipped("join_task", "agent already joined the task"), nil
	}
	task, err := h.Task(ctx, taskID)
	if err != nil {
		return Outcome{}, err
	}
	if !task.exists() {
		return Outcome{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("task %q does not exist", taskID)).At(clierr.StageBuild)
	}
	if task.Finished {
		return Outcome{}, finishedConflict(task)
	}
	price, _ := new(big.Int).SetString(task.Price, 10)
	return h.send(ctx, "joinTask", price, taskID, agentID)
}

// FinishTask closes taskID with agentID as the winner.
func (h *Hub) FinishTask(ctx context.Context, taskID, agentID string) (Outcome, error) {
	if err := requireID("agent id", agentID); err != nil {
		return Outcome{}, err
	}
	task, err := h.Task(ctx, taskID)
	if err != nil {
		return Outcome{}, err
	}
	if task.Finished {
		return Outcome{}, finishedConflict(task)
	}
	return h.send(ctx, "finishTask", nil, taskID, agentID)
}

// Buy grants agentID access to id. It is a no-op when the permission exists.
func (h *Hub) Buy(ctx context.Context, id, agentID string) (Outcome, error) {
	ok, err := h.HasPermission(ctx, id, agentID)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		return skipped("buy", "permission already granted"), nil
	}
	return h.send(ctx, "buy", nil, id, agentID)
}

func (h *Hub) send(ctx context.Context, method string, value *big.Int, args ...any) (Outcome, error) {
	data, err := hubABI.Pack(method, args...)
	if err != nil {
		return Outcome{}, clierr.Wrap(clierr.CodeInternal, "pack "+method+" call", err)
	}
	receipt, err := h.exec.Send(ctx, execution.Call{To: h.contract, Data: data, Value: value, GasLimit: h.gasLimit})
	if err != nil {
		return Outcome{}, err
	}
	h.log.Info("hub write confirmed", zap.String("method", method), zap.String("tx", receipt.TxHash))
	return Outcome{Action: actionName(method), Receipt: &receipt}, nil
}

func (h *Hub) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := hubABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method+" call", err)
	}
	conn, err := h.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	to := h.contract
	raw, err := conn.Client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+method, err).At(clierr.StageBuild)
	}
	out, err := hubABI.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method, err).At(clierr.StageBuild)
	}
	return out, nil
}

func finishedConflict(task Task) error {
	return clierr.Conflict(fmt.Sprintf("task %q already finished, winner is %q", task.ID, task.Winner))
}

func skipped(action, reason string) Outcome {
	return Outcome{Action: action, Skipped: true, Reason: reason}
}

// actionName turns a contract method such as createTask into create_task.
func actionName(method string) string {
	var b strings.Builder
	for i, r := range method {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func requireID(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return clierr.New(clierr.CodeUsage, name+" is required")
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
