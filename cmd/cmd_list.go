// cmd_list.go - Modell-Verwaltung ueber den Server
// Hauptfunktionen: ListHandler, LoadHandler, DeleteHandler
package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgerun/edgerun/api"
)

// ListHandler - Listet alle geladenen Modelle des Servers auf
func ListHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	models, err := client.List(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string
	for _, m := range models.Models {
		data = append(data, []string{
			m.ID,
			m.Backend,
			strconv.Itoa(len(m.Inputs)) + "/" + strconv.Itoa(len(m.Outputs)),
			m.Source,
			humanSince(m.CreatedAt),
		})
	}

	renderTable(cmd.OutOrStdout(), []string{"ID", "BACKEND", "IN/OUT", "SOURCE", "CREATED"}, data)
	return nil
}

func humanSince(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}

// LoadHandler - Laedt ein Modell auf dem Server
func LoadHandler(cmd *cobra.Command, args []string) error {
	device, _ := cmd.Flags().GetString("device")
	deviceID, _ := cmd.Flags().GetInt("device-id")

	paths := make([]string, len(args))
	for i, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return err
		}
		paths[i] = abs
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Create(cmd.Context(), &api.CreateRequest{Paths: paths, Device: device, DeviceID: deviceID})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", resp.ID, resp.Backend)
	return nil
}

// DeleteHandler - Entlaedt Modelle auf dem Server
func DeleteHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, id := range args {
		if err := client.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted '%s'\n", id)
	}
	return nil
}

// newListCmd - Erstellt den list Command
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List models loaded on the server",
		Args:    cobra.ExactArgs(0),
		RunE:    ListHandler,
	}
}

// newLoadCmd - Erstellt den load Command
func newLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load PATH [PATH...]",
		Short: "Load a model on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE:  LoadHandler,
	}
	cmd.Flags().String("device", "", "Device: cpu, gpu or opencl")
	cmd.Flags().Int("device-id", 0, "Device index")
	return cmd
}

// newDeleteCmd - Erstellt den rm Command
func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID [ID...]",
		Short: "Unload models from the server",
		Args:  cobra.MinimumNArgs(1),
		RunE:  DeleteHandler,
	}
}
