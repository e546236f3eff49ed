package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fills-ai/payments-api/internal/common"
	"github.com/fills-ai/payments-api/internal/config"
	"github.com/fills-ai/payments-api/internal/payment"
	"github.com/fills-ai/payments-api/internal/resilience"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// operator holds the collaborators shared by every subcommand. Credentials come
// from the same PHONEPE_* environment the API server reads.
type operator struct {
	timeout  time.Duration
	prefix   string
	resolver *config.EnvResolver
	provider *payment.PhonePe
}

func (o *operator) wire() {
	if o.resolver == nil {
		o.resolver = config.NewEnvResolver()
	}
	if o.provider == nil {
		o.provider = payment.NewPhonePe(resilience.NewHTTPClient(o.timeout, nil))
	}
}

func (o *operator) service() *payment.Service {
	o.wire()
	return payment.NewService(o.resolver, o.provider, o.prefix)
}

func newRootCmd() *cobra.Command {
	op := &operator{}
	root := &cobra.Command{
		Use:           "payctl",
		Short:         "Operate the PhonePe checkout integration from a terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&op.timeout, "timeout", 30*time.Second, "Upstream request timeout")
	root.PersistentFlags().StringVar(&op.prefix, "order-prefix", payment.DefaultOrderPrefix, "Prefix for generated merchant order ids")

	root.AddCommand(tokenCmd(op))
	root.AddCommand(initiateCmd(op))
	root.AddCommand(statusCmd(op))
	return root
}

func tokenCmd(op *operator) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Exchange the client credentials for an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op.wire()
			cfg, err := op.resolver.Gateway()
			if err != nil {
				return err
			}
			tok, err := op.provider.Tokens.AccessToken(cmd.Context(), cfg)
			if err != nil {
				return describe(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Type:    %s\n", tok.Type)
			fmt.Fprintf(out, "Token:   %s\n", mask(tok.Token))
			fmt.Fprintf(out, "Expires: %s\n", tok.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func initiateCmd(op *operator) *cobra.Command {
	var (
		amount   float64
		redirect string
		message  string
	)
	cmd := &cobra.Command{
		Use:   "initiate",
		Short: "Create a checkout and print the hosted payment URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := op.service().Initiate(cmd.Context(), payment.InitiateRequest{
				Amount:      &amount,
				RedirectURL: redirect,
				Message:     message,
			})
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().Float64VarP(&amount, "amount", "a", 0, "Amount in rupees")
	cmd.Flags().StringVarP(&redirect, "redirect-url", "r", "", "Where the payer returns after checkout")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message shown on the checkout page")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("redirect-url")
	return cmd
}

func statusCmd(op *operator) *cobra.Command {
	return &cobra.Command{
		Use:   "status [merchantOrderId]",
		Short: "Print the gateway's view of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := op.service().Status(cmd.Context(), args[0])
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe prefixes gateway errors with their code so scripts can grep for it.
func describe(err error) error {
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code == "" {
		return err
	}
	return fmt.Errorf("%s: %w", appErr.Code, err)
}

func mask(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
