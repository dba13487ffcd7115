package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ultrabooks/ultrabooks/internal/parser"
	"github.com/ultrabooks/ultrabooks/internal/util"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

type inspectResult struct {
	File       string            `json:"file"`
	Inspection *types.Inspection `json:"inspection,omitempty"`
	CoverFile  string            `json:"cover_file,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var coverDir string

	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Extract title, author and cover from local book files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			parsers := parser.NewFactory(logger, cfg.Covers.MaxMemberBytes)

			if coverDir != "" {
				if err := os.MkdirAll(coverDir, 0755); err != nil {
					return fmt.Errorf("failed to create cover directory: %w", err)
				}
			}

			results := make([]inspectResult, 0, len(args))
			for _, file := range args {
				results = append(results, inspectFile(cmd, parsers, file, coverDir))
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeInspectJSON(out, results)
			}
			fmt.Fprintln(out, renderInspectTable(results))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	cmd.Flags().StringVar(&coverDir, "cover-out", "", "Directory to write extracted covers to")
	return cmd
}

func inspectFile(cmd *cobra.Command, parsers parser.Factory, file, coverDir string) inspectResult {
	result := inspectResult{File: file}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(file), "."))
	p, err := parsers.GetParser(format)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	data, err := os.ReadFile(file)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	inspection, err := p.Inspect(cmd.Context(), data)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Inspection = inspection

	if coverDir != "" && inspection.Cover != nil {
		base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		name := filepath.Join(coverDir, base+"-cover."+util.CoverExtension(inspection.Cover.MIMEType))
		if err := os.WriteFile(name, inspection.Cover.Data, 0644); err != nil {
			result.Error = fmt.Sprintf("failed to write cover: %v", err)
			return result
		}
		result.CoverFile = name
	}

	return result
}

func renderInspectTable(results []inspectResult) string {
	headers := []string{"File", "Title", "Author", "Cover", "MIME", "Method", "Bytes"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Error != "" {
			rows = append(rows, []string{r.File, "error: " + r.Error})
			continue
		}
		row := []string{r.File, r.Inspection.Title, r.Inspection.Author, "-", "", "", ""}
		if cover := r.Inspection.Cover; cover != nil {
			row[3] = cover.SourcePath
			row[4] = cover.MIMEType
			row[5] = cover.Method
			row[6] = strconv.Itoa(cover.Size)
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func writeInspectJSON(w io.Writer, results []inspectResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}
