// cmd_run.go - Lokale Ausfuehrung eines Modells
// Hauptfunktionen: RunHandler, inputShape, writeOutput
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
	"github.com/edgerun/edgerun/runner"
)

// RunHandler - Laedt ein Modell, setzt Eingaben aus Dateien und fuehrt es aus
func RunHandler(cmd *cobra.Command, args []string) error {
	inputFlags, _ := cmd.Flags().GetStringArray("input")
	shapeFlags, _ := cmd.Flags().GetStringArray("shape")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	device, _ := cmd.Flags().GetString("device")
	threads, _ := cmd.Flags().GetInt("threads")

	inputs, err := parseAssignments("input", inputFlags)
	if err != nil {
		return err
	}
	shapes, err := parseAssignments("shape", shapeFlags)
	if err != nil {
		return err
	}

	opts := append([]model.Option{}, modelOptions...)
	if threads > 0 {
		opts = append(opts, model.WithThreads(threads))
	}

	rt := runner.New(runner.WithMaxParallel(1), runner.WithModelOptions(opts...))
	defer rt.Close()

	ctx := cmd.Context()
	h, err := rt.Create(ctx, args, device, 0)
	if err != nil {
		return err
	}

	info, err := rt.Describe(h)
	if err != nil {
		return err
	}

	for name := range inputs {
		if !hasTensor(info.Inputs, name) {
			return fmt.Errorf("model has no input %q", name)
		}
	}

	for _, in := range info.Inputs {
		path, ok := inputs[in.Name]
		if !ok {
			return fmt.Errorf("missing --input %s=FILE", in.Name)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		shape, err := inputShape(in, shapes[in.Name], len(data))
		if err != nil {
			return err
		}

		if err := rt.SetInput(h, in.Name, shape, data); err != nil {
			return err
		}
	}

	if err := rt.Run(ctx, h); err != nil {
		return err
	}

	info, err = rt.Describe(h)
	if err != nil {
		return err
	}

	var data [][]string
	for i, out := range info.Outputs {
		d, bytes, err := rt.ReadOutput(h, i)
		if err != nil {
			return err
		}

		row := []string{outputName(out, i), d.Type.String(), d.Shape.String(), previewValues(d, bytes)}
		if outputDir != "" {
			path, err := writeOutput(outputDir, outputName(out, i), bytes)
			if err != nil {
				return err
			}
			row = append(row, path)
		}
		data = append(data, row)
	}

	header := []string{"OUTPUT", "DTYPE", "SHAPE", "VALUES"}
	if outputDir != "" {
		header = append(header, "FILE")
	}
	renderTable(cmd.OutOrStdout(), header, data)
	return nil
}

func hasTensor(ds []ml.TensorDescriptor, name string) bool {
	for _, d := range ds {
		if d.Name == name {
			return true
		}
	}
	return false
}

// inputShape - Shape aus --shape, sonst aus der Deklaration. Bei genau
// einer unbekannten Dimension wird sie aus der Dateigroesse abgeleitet.
func inputShape(in ml.TensorDescriptor, flag string, size int) (ml.Shape, error) {
	if flag != "" {
		return ml.ParseShape(flag)
	}

	if in.Type == ml.DTypeString {
		return ml.Shape{int64(size)}, nil
	}

	shape := in.Shape.Clone()
	unknown, known := -1, int64(1)
	for k, d := range shape {
		if d >= 0 {
			known *= d
			continue
		}
		if unknown >= 0 {
			return nil, fmt.Errorf("input %q has shape %s, pass --shape %s=...", in.Name, in.Shape, in.Name)
		}
		unknown = k
	}

	elem := int64(in.Type.Size())
	if unknown >= 0 {
		if known == 0 || int64(size)%(known*elem) != 0 {
			return nil, fmt.Errorf("input %q: %d bytes do not fit shape %s", in.Name, size, in.Shape)
		}
		shape[unknown] = int64(size) / (known * elem)
	}
	return shape, nil
}

func outputName(d ml.TensorDescriptor, i int) string {
	if d.Name == "" {
		return fmt.Sprintf("output_%d", i)
	}
	return d.Name
}

// writeOutput - Schreibt eine Ausgabe als <name>.bin
func writeOutput(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, name)

	path := filepath.Join(dir, safe+".bin")
	return path, os.WriteFile(path, data, 0o644)
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run PATH [PATH...]",
		Short: "Load a model locally, run it once and print its outputs",
		Example: `  edgerun run ./model --input data=rows.bin --shape data=4,12
  edgerun run model.tflite --input x=x.bin --output-dir out`,
		Args: cobra.MinimumNArgs(1),
		RunE: RunHandler,
	}
	cmd.Flags().StringArray("input", nil, "Input data as name=FILE (raw row-major bytes, JSON for string inputs)")
	cmd.Flags().StringArray("shape", nil, "Input shape as name=d0,d1,...")
	cmd.Flags().String("output-dir", "", "Write every output to DIR/<name>.bin")
	cmd.Flags().String("device", "", "Device: cpu, gpu or opencl (default EDGERUN_DEVICE)")
	cmd.Flags().Int("threads", 0, "Engine thread count (default EDGERUN_NUM_THREADS)")
	return cmd
}
