package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hllvc/grantline/internal/app"
	"github.com/hllvc/grantline/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "grantline",
		Usage: "OAuth 2.0 client-credentials bearer token helper",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
		},
		Commands: []*cli.Command{
			tokenCommand(),
			proxyCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// issuerFlags are shared by the token and proxy commands.
func issuerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "issuer--token-url",
			Usage: "token endpoint URL",
		},
		&cli.StringFlag{
			Name:  "issuer--client-id",
			Usage: "OAuth client identifier",
		},
		&cli.StringFlag{
			Name:  "issuer--client-secret",
			Usage: "OAuth client secret (prompted on a terminal when omitted)",
		},
		&cli.StringFlag{
			Name:  "issuer--scope",
			Usage: "requested scope",
		},
		&cli.BoolFlag{
			Name:  "issuer--urlencode-credentials",
			Usage: "percent-encode client id and secret per RFC 6749 section 2.3.1",
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:   "token",
		Usage:  "retrieve an access token and print it to stdout",
		Flags:  issuerFlags(),
		Action: tokenAction,
	}
}

func tokenAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdownObservability(ctx)

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	token, err := application.RetrieveToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func proxyCommand() *cli.Command {
	flags := append(issuerFlags(),
		&cli.StringFlag{
			Name:  "proxy--host",
			Usage: "proxy listen host",
			Value: app.DefaultConfigProxyHost,
		},
		&cli.IntFlag{
			Name:  "proxy--port",
			Usage: "proxy listen port",
			Value: int(app.DefaultConfigProxyPort),
		},
		&cli.StringFlag{
			Name:  "proxy--upstream-base-url",
			Usage: "upstream base URL requests are forwarded to",
		},
	)

	return &cli.Command{
		Name:   "proxy",
		Usage:  "run a local reverse proxy that injects bearer tokens",
		Flags:  flags,
		Action: proxyAction,
	}
}

func proxyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdownObservability(ctx)

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

// setup loads the configuration, fills the client secret from a terminal
// prompt when necessary, and installs the observability layer.
func setup(ctx context.Context, cmd *cli.Command) (*app.Config, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := promptClientSecret(cfg); err != nil {
		return nil, err
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, nil
}

func shutdownObservability(ctx context.Context) {
	if err := observability.Shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: failed to flush logs:", err)
	}
}

// promptClientSecret reads the client secret from the terminal when the
// client_credentials method needs one and the config left it blank. A
// non-interactive stdin fails instead of hanging.
func promptClientSecret(cfg *app.Config) error {
	if cfg.Method != app.AuthenticationMethodClientCredentials || cfg.Issuer.ClientSecret != "" {
		return nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("issuer.client_secret required (stdin is not a terminal, cannot prompt)")
	}

	fmt.Fprintf(os.Stderr, "Client secret for %s: ", cfg.Issuer.ClientID)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read client secret: %w", err)
	}

	cfg.Issuer.ClientSecret = string(secret)
	if cfg.Issuer.ClientSecret == "" {
		return fmt.Errorf("issuer.client_secret must be non-blank")
	}

	return nil
}
