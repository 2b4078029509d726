package pipeline

import (
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Describe writes the finalized registry as a table, one handler per row in
// execution order.
func (r *Registry[Req, Res]) Describe(w io.Writer) error {
	before, err := r.ForPhase(Before)
	if err != nil {
		return err
	}
	after, _ := r.ForPhase(After)

	var rows [][]string
	for _, h := range append(before, after...) {
		rows = append(rows, []string{
			h.phase.String(),
			strconv.Itoa(h.order),
			h.name,
			strings.Join(h.patterns, " "),
			h.fn.Func.Type().String(),
		})
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(
			tw.Rendition{
				Borders: tw.BorderNone,
				Symbols: tw.NewSymbols(tw.StyleASCII),
				Settings: tw.Settings{
					Lines: tw.Lines{
						ShowHeaderLine: tw.Off,
						ShowFooterLine: tw.Off,
						ShowTop:        tw.Off,
						ShowBottom:     tw.Off,
					},
					Separators: tw.Separators{
						ShowHeader:     tw.Off,
						ShowFooter:     tw.Off,
						BetweenRows:    tw.Off,
						BetweenColumns: tw.Off,
					},
				},
			},
		)),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
	)
	table.Header([]string{"Phase", "Order", "Handler", "Paths", "Signature"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
