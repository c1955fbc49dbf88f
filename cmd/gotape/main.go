package main

import (
	"fmt"
	"os"

	"github.com/mwantia/gotape/cmd/gotape/cli"
	"github.com/mwantia/gotape/cmd/gotape/cli/client"
	"github.com/mwantia/gotape/cmd/gotape/cli/server"
)

var (
	version = "0.0.1-dev"
	commit  = "main"
)

func main() {
	root := cli.NewRootCommand(cli.VersionInfo{
		Version: version,
		Commit:  commit,
	})

	root.AddCommand(cli.NewVersionCommand())

	root.AddCommand(server.NewAgentCommand())
	root.AddCommand(server.NewConfigCommand())

	root.AddCommand(client.NewArchiveCommand())
	root.AddCommand(client.NewRecoverCommand())
	root.AddCommand(client.NewTapeCommand())
	root.AddCommand(client.NewCatalogCommand())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
