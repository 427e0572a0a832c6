// cmd_utils.go - Gemeinsame Hilfsfunktionen
// Hauptfunktionen: parseAssignments, renderTable, tensorRows, previewValues
package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/edgerun/edgerun/format"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
)

// modelOptions are passed to every locally opened model
var modelOptions []model.Option

// parseAssignments - Zerlegt wiederholte name=wert Flags
func parseAssignments(flag string, values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --%s %q, expected name=value", flag, v)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("--%s given twice for %q", flag, name)
		}
		out[name] = value
	}
	return out, nil
}

// renderTable - Gibt eine Tabelle im Stil von "list" aus
func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

var tensorHeader = []string{"KIND", "#", "NAME", "DTYPE", "SHAPE", "SIZE"}

// tensorRows - Eine Tabellenzeile pro Tensor
func tensorRows(kind string, ds []ml.TensorDescriptor) [][]string {
	rows := make([][]string, len(ds))
	for i, d := range ds {
		size := "-"
		if n := d.Size(); n >= 0 {
			size = format.HumanBytes(n)
		}
		name := d.Name
		if name == "" {
			name = "-"
		}
		rows[i] = []string{kind, strconv.Itoa(i), name, d.Type.String(), d.Shape.String(), size}
	}
	return rows
}

func describeModel(m model.Model) [][]string {
	var ins, outs, ws []ml.TensorDescriptor
	for i := range m.InputCount() {
		ins = append(ins, m.Input(i))
	}
	for i := range m.OutputCount() {
		outs = append(outs, m.Output(i))
	}
	for i := range m.WeightCount() {
		ws = append(ws, m.Weight(i))
	}

	rows := tensorRows("input", ins)
	rows = append(rows, tensorRows("output", outs)...)
	return append(rows, tensorRows("weight", ws)...)
}

// previewValues - Einzeilige Kurzdarstellung eines Tensors
func previewValues(d ml.TensorDescriptor, data []byte) string {
	if d.Type == ml.DTypeString {
		s := string(data)
		if len(s) > 64 {
			s = s[:61] + "..."
		}
		return s
	}

	text := ml.Dump(d.Shape, d.Type, data, ml.DumpWithThreshold(8), ml.DumpWithEdgeItems(2))
	if text == "<unsupported>" {
		return format.HumanBytes(int64(len(data)))
	}
	return strings.Join(strings.Fields(text), " ")
}
