package main

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/semihalev/go-sqliter"
)

// rowCost is the window cost of a row of two integer columns.
const rowCost = 2*16 + 4

func openNumbers(t *testing.T, n int) *sqliter.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := sqliter.Open(":memory:", sqliter.WithInMemory(), sqliter.WithRegistry(sqliter.NewRegistry()))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.Exec(ctx, "CREATE TABLE nums (n INTEGER, sq INTEGER)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	err = conn.WithTransaction(ctx, func(c *sqliter.Connection) error {
		for i := 0; i < n; i++ {
			if err := c.Exec(ctx, "INSERT INTO nums VALUES (?, ?)", i, i*i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to insert rows: %v", err)
	}
	return conn
}

func TestWindowStart(t *testing.T) {
	tests := []struct {
		pos, rows, want int
	}{
		{0, 10, 0},
		{2, 10, 0},
		{25, 10, 22},
		{25, 0, 25},
		{100, 30, 90},
	}
	for _, tt := range tests {
		if got := windowStart(tt.pos, tt.rows); got != tt.want {
			t.Errorf("windowStart(%d, %d): expected %d, got %d", tt.pos, tt.rows, tt.want, got)
		}
	}
}

// TestPagerEnsure tests that the pager refills only when the row is outside the window.
func TestPagerEnsure(t *testing.T) {
	conn := openNumbers(t, 50)
	ctx := context.Background()

	p, err := newPager(conn, "SELECT n, sq FROM nums ORDER BY n", 10*rowCost)
	if err != nil {
		t.Fatalf("Failed to create pager: %v", err)
	}
	defer p.close()

	if strings.Join(p.columns, ",") != "n,sq" {
		t.Errorf("Expected columns n,sq, got %v", p.columns)
	}

	if err := p.ensure(ctx, 0); err != nil {
		t.Fatalf("ensure(0) failed: %v", err)
	}
	if p.start != 0 || p.total != 50 || p.win.NumRows() != 10 {
		t.Errorf("Expected rows 0-9 of 50, got start %d, total %d, %d rows", p.start, p.total, p.win.NumRows())
	}

	if err := p.ensure(ctx, 25); err != nil {
		t.Fatalf("ensure(25) failed: %v", err)
	}
	if p.start != 22 {
		t.Errorf("Expected window to start at 22, got %d", p.start)
	}

	rows, err := p.rows()
	if err != nil {
		t.Fatalf("rows failed: %v", err)
	}
	if got := rows[25-p.start]; got[0] != "25" || got[1] != "625" {
		t.Errorf("Expected row 25 to be [25 625], got %v", got)
	}

	// Inside the current window: no refill
	if err := p.ensure(ctx, 30); err != nil {
		t.Fatalf("ensure(30) failed: %v", err)
	}
	if p.start != 22 {
		t.Errorf("Expected window to stay at 22, got %d", p.start)
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelNavigation(t *testing.T) {
	conn := openNumbers(t, 50)
	p, err := newPager(conn, "SELECT n, sq FROM nums ORDER BY n", 10*rowCost)
	if err != nil {
		t.Fatalf("Failed to create pager: %v", err)
	}
	defer p.close()

	m, err := newModel(p, "SELECT n, sq FROM nums ORDER BY n")
	if err != nil {
		t.Fatalf("Failed to create model: %v", err)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(model)
	if m.pos != 1 {
		t.Errorf("Expected position 1, got %d", m.pos)
	}

	next, _ = m.Update(keyRunes("G"))
	m = next.(model)
	if m.pos != 49 {
		t.Errorf("Expected last row, got %d", m.pos)
	}
	if m.table.Cursor() != 49-p.start {
		t.Errorf("Expected cursor %d, got %d", 49-p.start, m.table.Cursor())
	}
	if !strings.Contains(m.View(), "Row 50/50") {
		t.Errorf("Expected status line for row 50, got %s", m.View())
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(model)
	if m.pos != 49 {
		t.Errorf("Expected position to stay at 49, got %d", m.pos)
	}

	next, _ = m.Update(keyRunes("g"))
	m = next.(model)
	if m.pos != 0 || p.start != 0 {
		t.Errorf("Expected first row in a window at 0, got pos %d, start %d", m.pos, p.start)
	}

	if _, cmd := m.Update(keyRunes("q")); cmd == nil {
		t.Error("Expected quit command")
	}
}
