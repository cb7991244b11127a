package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/fitout/cmd/cli/internal/commands"
	"github.com/wolfeidau/fitout/internal/config"
)

var (
	version = "dev"
	cli     struct {
		Login     commands.LoginCmd     `cmd:"" help:"Log in and show the dashboard the session routes to"`
		LogoutAll commands.LogoutAllCmd `cmd:"" name:"logout-all" help:"Revoke every session of the account"`
		Session   commands.SessionCmd   `cmd:"" help:"Hold a session open until interrupted"`
		Can       commands.CanCmd       `cmd:"" help:"Check permissions against the account's role"`
		Debug     bool                  `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("fitout"),
		kong.Vars{
			"version": version,
		},
		kong.Configuration(config.YAMLLoader, "~/.config/fitout/config.yaml"),
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Stdout: os.Stdout})
	cmd.FatalIfErrorf(err)
}
