package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agents",
	}

	var email string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAPIClient().AddAgent(cmd.Context(), strings.Join(args, " "), email)
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), a)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent #%d added: %s\n", a.ID, a.Name)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "email for visit notifications")

	list := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := newAPIClient().ListAgents(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), agents)
			}
			return printAgents(cmd.OutOrStdout(), agents)
		},
	}

	cmd.AddCommand(add, list, newSetActiveCmd("activate", true), newSetActiveCmd("deactivate", false))
	return cmd
}

func newSetActiveCmd(use string, active bool) *cobra.Command {
	short := "Deactivate an agent so no new visits can be booked with them"
	if active {
		short = "Reactivate an agent"
	}
	return &cobra.Command{
		Use:   use + " <agent-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt64("agent", args[0])
			if err != nil {
				return err
			}
			a, err := newAPIClient().SetAgentActive(cmd.Context(), id, active)
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), a)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent #%d %sd.\n", a.ID, use)
			return nil
		},
	}
}

func newPropertiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Manage properties",
	}

	add := &cobra.Command{
		Use:   "add <code> <address>",
		Short: "Add a property",
		Long:  "Add a property by listing code and street address.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newAPIClient().AddProperty(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Property #%d added: %s %s\n", p.ID, p.Code, p.Address)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := newAPIClient().ListProperties(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), props)
			}
			return printProperties(cmd.OutOrStdout(), props)
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
