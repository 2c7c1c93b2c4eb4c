package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Register accounts through the interactive authorization dialogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	authCmd.AddCommand(newAuthBeginCommand(ctx))
	authCmd.AddCommand(newAuthRespondCommand(ctx))
	authCmd.AddCommand(newAuthCancelCommand(ctx))

	return authCmd
}

func newAuthBeginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "begin <account-name>",
		Short: "Start an authorization and print the login URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := ctx.client().AuthBegin(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Open this URL in a browser, sign in, then run:")
			fmt.Fprintln(cmd.OutOrStdout(), "  spool auth respond <post-login-url>")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func newAuthRespondCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "respond <post-login-url>",
		Short: "Complete a pending authorization with the browser redirect URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := ctx.client().AuthComplete(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s registered\n", accountID)
			return nil
		},
	}
}

func newAuthCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Abort an in-flight authorization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			canceled, err := ctx.client().AuthCancel()
			if err != nil {
				return err
			}
			if !canceled {
				fmt.Fprintln(cmd.OutOrStdout(), "No authorization in progress")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Authorization canceled")
			return nil
		},
	}
}

func renderAccountTable(accounts []accountView) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ACCOUNT", "COUNTRY", "CREDENTIAL", "CREATED"})
	for _, account := range accounts {
		tw.AppendRow(table.Row{
			account.ID,
			account.Country,
			yesNo(account.CredentialPresent),
			account.CreatedAt.Format("2006-01-02"),
		})
	}
	return tw.Render()
}

func newAccountsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List registered accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := ctx.client().Accounts()
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts registered; run `spool auth begin <name>`")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAccountTable(accounts))
			return nil
		},
	}
}
