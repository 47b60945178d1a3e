// Package schema describes the command tree as JSON for scripted callers.
package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AnnotationSendsTransactions marks commands that broadcast transactions.
const AnnotationSendsTransactions = "chainctl/sends-transactions"

type CommandSchema struct {
	Path             string          `json:"path"`
	Use              string          `json:"use"`
	Short            string          `json:"short"`
	Aliases          []string        `json:"aliases,omitempty"`
	SendsTransaction bool            `json:"sends_transaction,omitempty"`
	Flags            []FlagSchema    `json:"flags,omitempty"`
	Subcommands      []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

// SendsTransactions reports whether cmd carries AnnotationSendsTransactions.
func SendsTransactions(cmd *cobra.Command) bool {
	return cmd != nil && cmd.Annotations[AnnotationSendsTransactions] == "true"
}

func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	for _, p := range strings.Fields(commandPath) {
		found := false
		for _, c := range cmd.Commands() {
			if c.Name() == p || slices.Contains(c.Aliases, p) {
				cmd = c
				found = true
				break
			}
		}
		if !found {
			return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
		}
	}
	return serialize(cmd), nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:             strings.TrimSpace(cmd.CommandPath()),
		Use:              cmd.Use,
		Short:            cmd.Short,
		Aliases:          cmd.Aliases,
		SendsTransaction: SendsTransactions(cmd),
		Flags:            collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
		})
	})
	return items
}
