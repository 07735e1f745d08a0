package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/poe-tool-dev/ggpkfs/pkg/dat"
	"github.com/poe-tool-dev/ggpkfs/pkg/datschema"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

func newGetCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "get <logical-path> [output=output.csv]",
		Short: "Fetch one logical path and write it to output, dispatching on extension",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logicalPath := args[0]
			output := "output.csv"
			if len(args) == 2 {
				output = args[1]
			}
			return runGet(state, logicalPath, output)
		},
	}
}

func runGet(state *cliState, logicalPath, output string) error {
	switch ext := path.Ext(logicalPath); ext {
	case ".dat64":
		if state.schema == nil {
			return fmt.Errorf("exporting a .dat64 table requires --ggpk --schema-path: %w", poeerr.UnsupportedError)
		}
		return saveDatFile(state, logicalPath, output)
	case ".txt":
		return saveTxtFile(state, logicalPath, output)
	default:
		return fmt.Errorf("reading files with extension %q: %w", ext, poeerr.UnsupportedError)
	}
}

// saveDatFile decodes logicalPath as a dat table and writes one CSV row
// per table row, column order following the schema, matching
// ggpkcli/src/main.rs's save_dat_file.
func saveDatFile(state *cliState, logicalPath, output string) error {
	base := path.Base(logicalPath)
	tableName := strings.TrimSuffix(base, path.Ext(base))

	table := state.schema.FindTable(tableName)
	if table == nil {
		return fmt.Errorf("schema has no table named %q: %w", tableName, poeerr.NotFound)
	}

	datFile, err := state.fs.ReadDat(logicalPath)
	if err != nil {
		return fmt.Errorf("read dat %s: %w", logicalPath, err)
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(columnHeaders(table.Columns)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i := 0; i < int(datFile.RowCount); i++ {
		row, err := datFile.NthRow(i)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		values, err := row.ReadWithSchema(table.Columns)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		record := make([]string, len(values))
		for col, v := range values {
			record[col] = datValueToCell(v)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}

func columnHeaders(cols []datschema.Column) []string {
	headers := make([]string, len(cols))
	unknownCount := 0
	for i, c := range cols {
		if c.Name != nil {
			headers[i] = *c.Name
			continue
		}
		headers[i] = fmt.Sprintf("Unknown%d", unknownCount)
		unknownCount++
	}
	return headers
}

// datValueToCell renders one decoded column value as a CSV cell,
// following ggpkcli/src/main.rs's datvalue_to_csv_cell dispatch.
func datValueToCell(v dat.Value) string {
	switch val := v.(type) {
	case dat.Bool:
		return strconv.FormatBool(bool(val))
	case dat.String:
		return string(val)
	case dat.U16:
		return strconv.FormatUint(uint64(val), 10)
	case dat.I16:
		return strconv.FormatInt(int64(val), 10)
	case dat.U32:
		return strconv.FormatUint(uint64(val), 10)
	case dat.I32:
		return strconv.FormatInt(int64(val), 10)
	case dat.F32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case dat.EnumRow:
		return strconv.FormatUint(uint64(val), 10)
	case dat.Row_:
		if val.Index == nil {
			return "None"
		}
		return strconv.FormatUint(*val.Index, 10)
	case dat.ForeignRow:
		if val.RID == nil {
			return "None"
		}
		return strconv.FormatUint(*val.RID, 10)
	case dat.Array:
		cells := make([]string, len(val))
		for i, elem := range val {
			cells[i] = datValueToCell(elem)
		}
		return "[" + strings.Join(cells, ";") + "]"
	case dat.UnknownArray:
		return fmt.Sprintf("[len=%d,offset=%d]", val.Length, val.Offset)
	default:
		return ""
	}
}

// saveTxtFile decodes logicalPath through PoeFS's UTF-16LE text path and
// writes the result verbatim, matching ggpkcli/src/main.rs's save_txt_file.
func saveTxtFile(state *cliState, logicalPath, output string) error {
	text, err := state.fs.ReadTxt(logicalPath)
	if err != nil {
		return fmt.Errorf("read txt %s: %w", logicalPath, err)
	}
	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	return nil
}
