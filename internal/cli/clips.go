package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"ccw/server/internal/clips"
)

// NewClipsCommand groups the clip catalog tools.
func NewClipsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Inspect animation sets and their file format",
	}
	cmd.AddCommand(newClipsListCommand(rootOpts))
	cmd.AddCommand(newClipsSchemaCommand())
	return cmd
}

// ClipRow is one clip in the list output.
type ClipRow struct {
	Set         string  `json:"set"`
	Weapon      string  `json:"weapon"`
	Chain       string  `json:"chain"`
	Step        int     `json:"step,omitempty"`
	Clip        string  `json:"clip"`
	DurationMS  int64   `json:"durationMillis"`
	HitFrameMS  int64   `json:"hitFrameMillis"`
	ComboStart  float64 `json:"comboStart"`
	ComboEnd    float64 `json:"comboEnd"`
	CancelStart float64 `json:"cancelStart"`
	CancelEnd   float64 `json:"cancelEnd"`
}

func newClipsListCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the registered animation sets and clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := openCatalog(cmd.Context(), dir)
			if err != nil {
				return err
			}
			rows := catalogRows(catalog)
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Success(rows, func(w io.Writer) error {
				return writeClipTable(w, rows)
			})
		},
	}

	cmd.Flags().StringVar(&dir, "clips", "", "directory of YAML animation sets to load")

	return cmd
}

func newClipsSchemaCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the JSON schema of the animation set file format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema := clips.Schema()
			if outPath == "" {
				data, err := json.MarshalIndent(schema, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal schema: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return writeSchema(outPath, schema)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "path to write the JSON schema (stdout when empty)")

	return cmd
}

// openCatalog returns a catalog holding the built-in set plus the sets in dir.
func openCatalog(ctx context.Context, dir string) (*clips.Catalog, error) {
	catalog := clips.NewCatalog(nil)
	if err := catalog.Initialize(ctx); err != nil {
		return nil, err
	}
	if dir != "" {
		if _, err := clips.LoadInto(catalog, dir); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func catalogRows(catalog *clips.Catalog) []ClipRow {
	var rows []ClipRow
	for _, name := range catalog.SetNames() {
		set, ok := catalog.Set(name)
		if !ok {
			continue
		}
		add := func(chain string, step int, clip clips.Clip) {
			rows = append(rows, ClipRow{
				Set:         set.Name,
				Weapon:      set.Weapon.String(),
				Chain:       chain,
				Step:        step,
				Clip:        clip.Name,
				DurationMS:  clip.Duration.Milliseconds(),
				HitFrameMS:  clip.HitFrame.Milliseconds(),
				ComboStart:  clip.ComboWindow.Start,
				ComboEnd:    clip.ComboWindow.End,
				CancelStart: clip.CancelWindow.Start,
				CancelEnd:   clip.CancelWindow.End,
			})
		}
		for i, clip := range set.Light {
			add("light", i+1, clip)
		}
		for i, clip := range set.Heavy {
			add("heavy", i+1, clip)
		}
		for _, clip := range set.Special {
			add("special", 0, clip)
		}
		optional := []struct {
			chain string
			clip  *clips.Clip
		}{
			{"sprint", set.Sprint},
			{"jump", set.Jump},
			{"guardCounter", set.GuardCounter},
			{"backstep", set.Backstep},
			{"dodgeRoll", set.DodgeRoll},
		}
		for _, entry := range optional {
			if entry.clip != nil {
				add(entry.chain, 0, *entry.clip)
			}
		}
	}
	return rows
}

func writeClipTable(w io.Writer, rows []ClipRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SET\tWEAPON\tCHAIN\tSTEP\tCLIP\tDURATION\tHIT\tCOMBO\tCANCEL")
	for _, row := range rows {
		step := "-"
		if row.Step > 0 {
			step = fmt.Sprint(row.Step)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\t%dms\t%.2f-%.2f\t%.2f-%.2f\n",
			row.Set, row.Weapon, row.Chain, step, row.Clip,
			row.DurationMS, row.HitFrameMS,
			row.ComboStart, row.ComboEnd, row.CancelStart, row.CancelEnd)
	}
	return tw.Flush()
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
