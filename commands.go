package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"text/tabwriter"

	appbilling "github.com/Zhima-Mochi/minishop-billing/internal/application/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/config"
	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/grpcbilling"
	obsadapter "github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-billing/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"github.com/spf13/cobra"
)

var errSandboxOnly = errors.New("this command needs --sandbox")

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "minishop-billing",
		Short: "Drive an in-app billing service from the command line",
		Long: `minishop-billing talks to a billing service over gRPC, or to an in-process
sandbox with --sandbox, and runs the client-side purchase flows against it.

Configuration is read from the environment (BILLING_PACKAGE_NAME is required).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.sandbox, "sandbox", false, "use the in-process sandbox instead of BILLING_SERVICE_ADDR")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides METRICS_ADDR)")

	root.AddCommand(
		newSupportedCmd(opts),
		newCatalogCmd(opts),
		newPurchasesCmd(opts),
		newConsumeCmd(opts),
		newBuyCmd(opts),
		newSandboxServerCmd(opts),
	)
	return root
}

// withApp wires the billing client for the duration of one command.
func withApp(opts *options, run func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, opts)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return run(ctx, cmd, a, args)
	}
}

func newSupportedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "supported <category>",
		Short: "Report whether the service supports a purchase category",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			category, err := dombilling.ParseCategory(args[0])
			if err != nil {
				return err
			}
			ok, err := await(ctx, func(cb appbilling.Callback[bool]) error {
				return a.billing.For(category).CheckSupported(ctx, cb)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s supported: %t\n", category, ok)
			return nil
		}),
	}
}

func newCatalogCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <category> <sku>...",
		Short: "Show the details of the given SKUs",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			category, err := dombilling.ParseCategory(args[0])
			if err != nil {
				return err
			}
			catalog, err := await(ctx, func(cb appbilling.Callback[*dombilling.ItemCatalog]) error {
				return a.billing.For(category).QueryItemCatalog(ctx, args[1:], cb)
			})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SKU\tTITLE\tPRICE\tCURRENCY")
			for _, item := range catalog.Values() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.SKU, item.Title, item.Price, item.Currency)
			}
			return w.Flush()
		}),
	}
}

func newPurchasesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purchases <category>",
		Short: "List owned purchases with verified receipts",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			category, err := dombilling.ParseCategory(args[0])
			if err != nil {
				return err
			}
			owned, err := await(ctx, func(cb appbilling.Callback[*dombilling.PurchaseCollection]) error {
				return a.billing.For(category).QueryPurchases(ctx, cb)
			})
			if err != nil {
				return err
			}
			printPurchases(cmd, owned.Values()...)
			return nil
		}),
	}
}

func newConsumeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "consume <token>",
		Short: "Consume an owned item so it can be bought again",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			token, err := await(ctx, func(cb appbilling.Callback[string]) error {
				return a.billing.Items().Consume(ctx, args[0], cb)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "consumed %s\n", token)
			return nil
		}),
	}
}

func newBuyCmd(opts *options) *cobra.Command {
	var (
		categoryName string
		payload      string
		replace      []string
		code         int
		cancel       bool
		consume      bool
	)
	cmd := &cobra.Command{
		Use:   "buy <sku>",
		Short: "Run a full purchase flow against the sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if a.host == nil {
				return errSandboxOnly
			}
			category, err := dombilling.ParseCategory(categoryName)
			if err != nil {
				return err
			}
			orch := a.billing.For(category)
			if cancel {
				a.host.SetUserChoice(dombilling.OutcomeCanceled)
			}

			if len(replace) > 0 {
				// Old SKUs must be owned before they can be replaced.
				for _, sku := range replace {
					if _, err := a.sandbox.Grant(sku); err != nil {
						return err
					}
				}
			}
			p, err := await(ctx, func(cb appbilling.Callback[*dombilling.Purchase]) error {
				if len(replace) > 0 {
					return orch.UpdateSubscription(ctx, a.host, code, replace, args[0], payload, cb)
				}
				return orch.Purchase(ctx, a.host, code, args[0], payload, cb)
			})
			if err != nil {
				return err
			}
			printPurchases(cmd, p)

			if consume {
				token, err := await(ctx, func(cb appbilling.Callback[string]) error {
					return orch.Consume(ctx, p.Token, cb)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "consumed %s\n", token)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&categoryName, "category", "inapp", "purchase category: inapp or subs")
	cmd.Flags().StringVar(&payload, "payload", "", "developer payload echoed in the receipt")
	cmd.Flags().StringSliceVar(&replace, "replace", nil, "subscription SKUs to replace")
	cmd.Flags().IntVar(&code, "request-code", 1001, "request code identifying the flow")
	cmd.Flags().BoolVar(&cancel, "cancel", false, "dismiss the purchase UI instead of paying")
	cmd.Flags().BoolVar(&consume, "consume", false, "consume the item after buying it")
	return cmd
}

func newSandboxServerCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "sandbox-server",
		Short: "Serve the sandbox billing service over gRPC",
		Long: `sandbox-server exposes a catalog-seeded sandbox on --addr. Receipts are
signed with a key generated at startup; its public half is logged as
public_key so clients can set BILLING_PUBLIC_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveSandbox(ctx, opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	return cmd
}

func serveSandbox(ctx context.Context, opts *options, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := opts.logger
	if logger == nil {
		logger, err = zaplogger.New(cfg.Logging())
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = zaplogger.Sync(logger) }()
	}

	sandbox, publicKey, err := newSandbox(cfg.PackageName)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv, health := grpcbilling.NewServer(sandbox, obsadapter.New(oteltrace.New(cfg.ServiceName), logger, nil, nil, nil))

	go func() {
		<-ctx.Done()
		health.Shutdown()
		srv.GracefulStop()
	}()

	logger.Info("grpc_server_start",
		observability.F("addr", lis.Addr().String()),
		observability.F("package_name", cfg.PackageName),
		observability.F("public_key", publicKey),
	)
	if err := srv.Serve(lis); err != nil {
		logger.Error("grpc_server_error", observability.F("error", err))
		return err
	}
	logger.Info("grpc_server_stopped")
	return nil
}

func printPurchases(cmd *cobra.Command, purchases ...*dombilling.Purchase) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SKU\tORDER\tTOKEN\tAUTO_RENEWING")
	for _, p := range purchases {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", p.SKU, p.OrderID, p.Token, p.AutoRenewing)
	}
	_ = w.Flush()
}
