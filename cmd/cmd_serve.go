// cmd_serve.go - Server-Start und Versionsanzeige
// Hauptfunktionen: RunServer, versionHandler
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/edgerun/edgerun/api"
	"github.com/edgerun/edgerun/envconfig"
	"github.com/edgerun/edgerun/server"
	"github.com/edgerun/edgerun/version"
)

// RunServer - Startet den edgerun-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt die Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Printf("edgerun version is %s\n", version.Version)

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		fmt.Println("Warning: could not connect to a running edgerun instance")
	}
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start edgerun",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
