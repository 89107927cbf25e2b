package main

import (
	"context"

	"github.com/semihalev/go-sqliter"
)

// pager keeps one window of a query's rows and refills it around the row
// the user moves to.
type pager struct {
	stmt    *sqliter.Statement
	win     *sqliter.ResultWindow
	columns []string
	start   int
	total   int
	loaded  bool
}

func newPager(conn *sqliter.Connection, query string, windowSize int) (*pager, error) {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	columns, err := stmt.ColumnNames()
	if err != nil {
		stmt.Close()
		return nil, err
	}
	win, err := sqliter.AcquireWindow(windowSize)
	if err != nil {
		stmt.Close()
		return nil, err
	}
	return &pager{stmt: stmt, win: win, columns: columns}, nil
}

// windowStart returns where a refill for pos should start: a third of a
// window before it, so moving back a little does not refill again.
func windowStart(pos, rowsPerWindow int) int {
	start := pos - rowsPerWindow/3
	if start < 0 {
		return 0
	}
	return start
}

// ensure makes row pos present in the window.
func (p *pager) ensure(ctx context.Context, pos int) error {
	if p.loaded && pos >= p.start && pos < p.start+p.win.NumRows() {
		return nil
	}
	res, err := p.stmt.Fill(ctx, p.win, sqliter.WindowRequest{
		StartPos:     windowStart(pos, p.win.NumRows()),
		RequiredPos:  pos,
		CountAllRows: true,
	})
	if err != nil {
		return err
	}
	p.start, p.total, p.loaded = res.StartPos, res.TotalRows, true
	return nil
}

// rows formats the rows held by the window.
func (p *pager) rows() ([][]string, error) {
	out := make([][]string, p.win.NumRows())
	for r := range out {
		slots, err := p.win.Row(r)
		if err != nil {
			return nil, err
		}
		cells := make([]string, len(slots))
		for c, s := range slots {
			cells[c] = s.String()
		}
		out[r] = cells
	}
	return out, nil
}

func (p *pager) close() error {
	p.win.Close()
	return p.stmt.Close()
}
