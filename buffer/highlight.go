package buffer

import (
	"context"
	"time"

	"editsync/logger"
	"editsync/text"
)

const (
	HighlightGroupAdd    = "EditsyncAdd"
	HighlightGroupDelete = "EditsyncDelete"
)

// HighlightRanges marks ranges in the current buffer with extmarks and
// removes those marks once the configured duration has passed. Returns that
// duration, or 0 when there is nothing to show.
func (b *NvimEditor) HighlightRanges(ctx context.Context, ranges []text.DiffRange) time.Duration {
	defer logger.Trace("buffer.HighlightRanges")()
	if len(ranges) == 0 {
		return 0
	}
	if err := b.ready(ctx); err != nil {
		logger.Warn("skipping highlight: %v", err)
		return 0
	}

	lines, _, err := b.readLines()
	if err != nil {
		logger.Error("error reading buffer for highlight: %v", err)
		return 0
	}

	duration := b.config.HighlightDuration
	batch := b.client.NewBatch()
	batch.ExecLua(highlightLua, nil, b.config.NsID, duration.Milliseconds(), highlightSpecs(lines, ranges))
	if err := batch.Execute(); err != nil {
		logger.Error("error highlighting ranges: %v", err)
		return 0
	}
	return duration
}

// highlightSpecs converts ranges to extmark parameters: 0-indexed rows and
// byte columns. Line ranges cover every row they touch; an end at column 0
// does not include that row.
func highlightSpecs(lines []string, ranges []text.DiffRange) []map[string]any {
	lastRow := max(len(lines)-1, 0)
	specs := make([]map[string]any, 0, len(ranges))

	for _, r := range ranges {
		group := HighlightGroupAdd
		if r.Type == text.DiffRangeDelete {
			group = HighlightGroupDelete
		}

		startRow := min(r.Start.Row, lastRow)
		if r.Highlight == text.DiffHighlightLine {
			endRow := r.End.Row
			if r.End.Column == 0 && r.End.Row > r.Start.Row {
				endRow--
			}
			specs = append(specs, map[string]any{
				"group":     group,
				"line":      true,
				"start_row": startRow,
				"end_row":   min(endRow, lastRow),
			})
			continue
		}

		endRow := min(r.End.Row, lastRow)
		specs = append(specs, map[string]any{
			"group":     group,
			"line":      false,
			"start_row": startRow,
			"start_col": byteColumn(lineAt(lines, startRow), r.Start.Column),
			"end_row":   endRow,
			"end_col":   byteColumn(lineAt(lines, endRow), r.End.Column),
		})
	}
	return specs
}

// highlightLua places one extmark per highlight range and deletes exactly those marks
// after the timeout, leaving later highlights in the namespace alone.
const highlightLua = `
	local ns, timeout, specs = ...
	vim.api.nvim_set_hl(0, 'EditsyncAdd', { default = true, link = 'DiffAdd' })
	vim.api.nvim_set_hl(0, 'EditsyncDelete', { default = true, link = 'DiffDelete' })

	local buf = vim.api.nvim_get_current_buf()
	local ids = {}
	for _, s in ipairs(specs) do
		if s.line then
			for row = s.start_row, s.end_row do
				table.insert(ids, vim.api.nvim_buf_set_extmark(buf, ns, row, 0, {
					line_hl_group = s.group,
					priority = 200,
				}))
			end
		else
			local ok, id = pcall(vim.api.nvim_buf_set_extmark, buf, ns, s.start_row, s.start_col, {
				end_row = s.end_row,
				end_col = s.end_col,
				hl_group = s.group,
				priority = 200,
			})
			if ok then
				table.insert(ids, id)
			end
		end
	end

	vim.defer_fn(function()
		if not vim.api.nvim_buf_is_valid(buf) then
			return
		end
		for _, id in ipairs(ids) do
			pcall(vim.api.nvim_buf_del_extmark, buf, ns, id)
		end
	end, timeout)
`
