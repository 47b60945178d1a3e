package app

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/hub"
	"github.com/spf13/cobra"
)

type agentInfo struct {
	AgentID    string `json:"agent_id"`
	Owner      string `json:"owner"`
	Registered bool   `json:"registered"`
}

type authInfo struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	Allowed bool   `json:"allowed"`
}

// hubClient returns the configured hub, bound to the signing account when
// account is non-nil.
func (s *runtimeState) hubClient(account *accountFlags) (*hub.Hub, error) {
	opts := clientOptions{}
	if account != nil {
		local, err := account.load()
		if err != nil {
			return nil, err
		}
		opts.account = local
	}
	c, err := s.chainClient(opts)
	if err != nil {
		return nil, err
	}
	return c.Hub()
}

func (s *runtimeState) newHubCommand() *cobra.Command {
	root := &cobra.Command{Use: "hub", Short: "Agent registration and task contract commands"}
	root.AddCommand(s.newHubAgentCommand())
	root.AddCommand(s.newHubAuthCommand())
	root.AddCommand(s.newHubRegisterCommand())
	root.AddCommand(s.newHubBuyCommand())
	root.AddCommand(s.newHubTaskCommand())
	return root
}

func (s *runtimeState) newHubAgentCommand() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Show the account that registered an agent id",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := s.hubClient(nil)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			owner, err := h.Agent(ctx, agentID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), agentInfo{
				AgentID:    agentID,
				Owner:      owner.Hex(),
				Registered: owner != (common.Address{}),
			}, nil)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func (s *runtimeState) newHubAuthCommand() *cobra.Command {
	var id, agentID string
	var strict bool
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Check whether an agent may act on an id",
		Long:  "Check whether an agent may act on an id. Without --strict the owner of task <id> is also allowed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := s.hubClient(nil)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			check := h.HasAuth
			if strict {
				check = h.HasPermission
			}
			ok, err := check(ctx, id, agentID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), authInfo{ID: id, AgentID: agentID, Allowed: ok}, nil)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Task or resource id")
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	cmd.Flags().BoolVar(&strict, "strict", false, "Only count explicit permissions")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func (s *runtimeState) newHubRegisterCommand() *cobra.Command {
	var agentID string
	var account accountFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent id for the signing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := s.hubClient(&account)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			out, err := h.Register(ctx, agentID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	account.register(cmd)
	_ = cmd.MarkFlagRequired("agent")
	return sendsTransactions(cmd)
}

func (s *runtimeState) newHubBuyCommand() *cobra.Command {
	var id, agentID string
	var account accountFlags
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Buy access to an id for an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := s.hubClient(&account)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			out, err := h.Buy(ctx, id, agentID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Resource id")
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	account.register(cmd)
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("agent")
	return sendsTransactions(cmd)
}

func (s *runtimeState) newHubTaskCommand() *cobra.Command {
	root := &cobra.Command{Use: "task", Short: "Task lifecycle commands"}

	var showID string
	show := &cobra.Command{
		Use:   "show",
		Short: "Read a task's owner, price and state",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := s.hubClient(nil)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			task, err := h.Task(ctx, showID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), task, nil)
		},
	}
	show.Flags().StringVar(&showID, "task", "", "Task id")
	_ = show.MarkFlagRequired("task")

	var createID, priceArg string
	var createAccount accountFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a task with a join price in wei",
		RunE: func(cmd *cobra.Command, args []string) error {
			price, ok := new(big.Int).SetString(strings.TrimSpace(priceArg), 10)
			if !ok || price.Sign() < 0 {
				return clierr.New(clierr.CodeUsage, "--price must be a non-negative integer in wei")
			}
			h, err := s.hubClient(&createAccount)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			out, err := h.CreateTask(ctx, createID, price)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil)
		},
	}
	create.Flags().StringVar(&createID, "task", "", "Task id")
	create.Flags().StringVar(&priceArg, "price", "0", "Join price in wei")
	createAccount.register(create)
	_ = create.MarkFlagRequired("task")

	var joinID, joinAgent string
	var joinAccount accountFlags
	join := &cobra.Command{
		Use:   "join",
		Short: "Join a task, paying its price",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := s.hubClient(&joinAccount)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			out, err := h.JoinTask(ctx, joinID, joinAgent)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil)
		},
	}
	join.Flags().StringVar(&joinID, "task", "", "Task id")
	join.Flags().StringVar(&joinAgent, "agent", "", "Agent id")
	joinAccount.register(join)
	_ = join.MarkFlagRequired("task")
	_ = join.MarkFlagRequired("agent")

	var finishID, winner string
	var finishAccount accountFlags
	finish := &cobra.Command{
		Use:   "finish",
		Short: "Finish a task and name the winning agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := s.hubClient(&finishAccount)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			out, err := h.FinishTask(ctx, finishID, winner)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil)
		},
	}
	finish.Flags().StringVar(&finishID, "task", "", "Task id")
	finish.Flags().StringVar(&winner, "winner", "", "Winning agent id")
	finishAccount.register(finish)
	_ = finish.MarkFlagRequired("task")
	_ = finish.MarkFlagRequired("winner")

	root.AddCommand(show)
	root.AddCommand(sendsTransactions(create))
	root.AddCommand(sendsTransactions(join))
	root.AddCommand(sendsTransactions(finish))
	return root
}
