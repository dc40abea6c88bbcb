package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"ovpn-issuer/cmd/ovpn-issuer/internal/commands"
	"ovpn-issuer/internal/config"
	"ovpn-issuer/internal/version"
)

var cli struct {
	Config     string `help:"Path to the YAML configuration file." default:"${config_path}" env:"OVPN_ISSUER_CONFIG" type:"path"`
	ServerHost string `help:"Override server_host from the configuration." env:"OVPN_ISSUER_SERVER_HOST"`
	LogLevel   string `help:"Override log_level from the configuration." env:"OVPN_ISSUER_LOG_LEVEL"`
	Debug      bool   `help:"Enable debug logging with human-readable output."`

	Serve   commands.ServeCmd   `cmd:"" help:"Run the HTTP API"`
	Issue   commands.IssueCmd   `cmd:"" help:"Issue a client certificate and profile"`
	List    commands.ListCmd    `cmd:"" help:"List issued clients"`
	Fetch   commands.FetchCmd   `cmd:"" help:"Print or save a client profile"`
	Inspect commands.InspectCmd `cmd:"" help:"Show the endpoint a stored profile connects to"`
	Revoke  commands.RevokeCmd  `cmd:"" help:"Remove a client's profile and key material"`
	Status  commands.StatusCmd  `cmd:"" help:"Show connected clients from the status log"`
	Summary commands.SummaryCmd `cmd:"" help:"Show issued and connected totals"`
	Events  commands.EventsCmd  `cmd:"" help:"Show the credential audit trail"`
	Token   commands.TokenCmd   `cmd:"" help:"Rotate the API bearer token"`
	Version commands.VersionCmd `cmd:"" help:"Print build information"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name(version.Name),
		kong.Description("Issue OpenVPN client profiles through easy-rsa and report connected clients."),
		kong.Vars{
			"config_path": config.DefaultPath,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Config:     cli.Config,
		ServerHost: cli.ServerHost,
		LogLevel:   cli.LogLevel,
		Debug:      cli.Debug,
		Stdout:     os.Stdout,
	})
	cmd.FatalIfErrorf(err)
}
