// cmd_inspect.go - Lokale Analyse eines Modell-Artefakts
// Hauptfunktionen: InspectHandler
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgerun/edgerun/format"
	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/model"
)

// InspectHandler - Zeigt Backend, Dateien und Tensoren eines Artefakts
func InspectHandler(cmd *cobra.Command, args []string) error {
	resolveOnly, _ := cmd.Flags().GetBool("resolve-only")

	r, err := artifact.Resolve(args...)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printResolved(w, r, "")
	if resolveOnly {
		return nil
	}

	m, err := model.New(r, modelOptions...)
	if errors.Is(err, model.ErrNoEngine) {
		fmt.Fprintf(w, "\nno engine for %s is available in this build\n", r.Backend)
		return nil
	} else if err != nil {
		return err
	}
	defer m.Close()

	fmt.Fprintln(w)
	renderTable(w, tensorHeader, describeModel(m))
	return nil
}

func printResolved(w io.Writer, r *artifact.Resolved, indent string) {
	fmt.Fprintf(w, "%sbackend: %s\n", indent, r.Backend)
	fmt.Fprintf(w, "%ssource:  %s\n", indent, r.Source)

	if len(r.Locations) > 0 {
		var data [][]string
		for _, role := range artifact.Roles() {
			l, ok := r.Location(role)
			if !ok {
				continue
			}
			size := "-"
			if l.InMemory() {
				size = format.HumanBytes(int64(len(l.Data)))
			} else if fi, err := os.Stat(l.Path); err == nil {
				size = format.HumanBytes(fi.Size())
			}
			data = append(data, []string{indent + role.String(), l.Label(), size})
		}
		fmt.Fprintln(w)
		renderTable(w, []string{indent + "ROLE", "FILE", "SIZE"}, data)
	}

	for i, s := range r.Stages {
		fmt.Fprintf(w, "\n%sstage %d:\n", indent, i)
		printResolved(w, s, indent+strings.Repeat(" ", 2))
	}
}

// newInspectCmd - Erstellt den inspect Command
func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect PATH [PATH...]",
		Short: "Show the backend, files and tensors of a model artifact",
		Args:  cobra.MinimumNArgs(1),
		RunE:  InspectHandler,
	}
	cmd.Flags().Bool("resolve-only", false, "Only resolve the artifact, do not load it")
	return cmd
}
