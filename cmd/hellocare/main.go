package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellocare/internal/app"
	"github.com/dropDatabas3/hellocare/internal/config"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/onboarding"
	"github.com/dropDatabas3/hellocare/internal/security/secretbox"
	"github.com/dropDatabas3/hellocare/internal/session"
)

type cli struct {
	configPath string
	envFile    string
	out        string // "json" | "text"
}

func (c *cli) config() (*config.Config, error) {
	_ = godotenv.Load(c.envFile)
	path := c.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

// container arma las dependencias. migrate aplica las migraciones centrales al abrir.
func (c *cli) container(ctx context.Context, migrate bool) (*app.Container, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	if migrate {
		cfg.Flags.Migrate = true
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "hellocare-cli"})
	return app.Build(logger.ToContext(ctx, logger.L()), cfg)
}

func (c *cli) print(v any, text func()) {
	if c.out == "json" {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
		return
	}
	text()
}

func main() {
	c := &cli{out: envOr("HELLOCARE_OUT", "text")}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "hellocare",
		Short:         "Operación de HelloCare: migraciones, tenants y claves",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "ruta a config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "ruta a .env (si existe, se carga)")
	root.PersistentFlags().StringVar(&c.out, "out", c.out, "Formato de salida: json|text")

	root.AddCommand(migrateCmd(ctx, c), tenantCmd(ctx, c), keysCmd(c))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// migrate: base central + todas las bases de tenant existentes.
func migrateCmd(ctx context.Context, c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica migraciones a la base central y a cada tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.container(ctx, true)
			if err != nil {
				return err
			}
			defer ct.Close()

			type row struct {
				Tenant  string `json:"tenant"`
				Outcome string `json:"outcome"`
				Applied []int  `json:"applied"`
			}
			var rows []row
			const page = 100
			for offset := 0; ; offset += page {
				tenants, err := ct.Central.Tenants().List(ctx, page, offset)
				if err != nil {
					return err
				}
				for _, t := range tenants {
					if !t.IsProvisioned() {
						continue
					}
					res, err := ct.Databases.Migrate(ctx, t.ID)
					if err != nil {
						return fmt.Errorf("migrate tenant %s: %w", t.ID, err)
					}
					rows = append(rows, row{Tenant: t.ID, Outcome: res.Outcome(), Applied: res.Applied})
				}
				if len(tenants) < page {
					break
				}
			}
			c.print(rows, func() {
				for _, r := range rows {
					fmt.Printf("%s\t%s\t%v\n", r.Tenant, r.Outcome, r.Applied)
				}
				fmt.Printf("ok (%d tenants)\n", len(rows))
			})
			return nil
		},
	}
}

func tenantCmd(ctx context.Context, c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Operaciones sobre tenants"}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "Lista tenants del registro central",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.container(ctx, false)
			if err != nil {
				return err
			}
			defer ct.Close()
			tenants, err := ct.Central.Tenants().List(ctx, limit, offset)
			if err != nil {
				return err
			}
			c.print(tenants, func() {
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tBILLING\tPROVISIONED\tCREATED")
				for _, t := range tenants {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", t.ID, t.CompanyName, t.BillingStatus, t.IsProvisioned(), t.CreatedAt.Format(time.DateOnly))
				}
				_ = tw.Flush()
			})
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "máximo de filas")
	list.Flags().IntVar(&offset, "offset", 0, "desplazamiento")

	provision := &cobra.Command{
		Use:   "provision <tenant-id>",
		Short: "Reintenta el provisioning de un tenant incompleto",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.container(ctx, false)
			if err != nil {
				return err
			}
			defer ct.Close()
			res, err := ct.Provisioner.ProvisionByID(ctx, args[0])
			if err != nil {
				return err
			}
			c.print(res, func() {
				fmt.Printf("tenant %s provisioned (already=%t, created_db=%t, warnings=%d)\n",
					args[0], res.AlreadyProvisioned, res.CreatedDatabase, len(res.Warnings))
			})
			return nil
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile <checkout-session-id|registration-id>",
		Short: "Reconcilia un pago confirmado y crea el tenant si falta",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := c.container(ctx, false)
			if err != nil {
				return err
			}
			defer ct.Close()
			res, err := ct.Coordinator.ReconcilePayment(ctx, args[0], onboarding.SourceCLI)
			if err != nil {
				return err
			}
			out := map[string]any{"status": res.Status, "created": res.Created, "session_status": res.SessionStatus}
			if res.Tenant != nil {
				out["tenant_id"] = res.Tenant.ID
			}
			c.print(out, func() {
				if res.Tenant == nil {
					fmt.Printf("pending (checkout %s)\n", res.SessionStatus)
					return
				}
				fmt.Printf("%s: tenant %s (created=%t)\n", res.Status, res.Tenant.ID, res.Created)
			})
			return nil
		},
	}

	cmd.AddCommand(list, provision, reconcile)
	return cmd
}

// keys genera material para SECRETBOX_MASTER_KEY y SESSION_SIGNING_SEED.
func keysCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Genera la master key de secretbox y la seed de firma de sesiones",
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := secretbox.GenerateKey()
			if err != nil {
				return err
			}
			seed, err := session.GenerateSeed()
			if err != nil {
				return err
			}
			c.print(map[string]string{"secretbox_master_key": box, "session_signing_seed": seed}, func() {
				fmt.Printf("SECRETBOX_MASTER_KEY=%s\nSESSION_SIGNING_SEED=%s\n", box, seed)
			})
			return nil
		},
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
