package menu

import (
	"context"
	"strings"
	"testing"

	"xdao.co/acttoken/action"
	"xdao.co/acttoken/storage/memory"
	"xdao.co/acttoken/token"
)

func newEncoder(t *testing.T) (*token.Encoder, *token.Decoder) {
	t.Helper()
	shortTerm, persistent := memory.New(), memory.New()
	enc, err := token.NewEncoder(shortTerm, persistent, token.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	return enc, token.NewDecoder(shortTerm, persistent)
}

func TestBuildGrid(t *testing.T) {
	enc, dec := newEncoder(t)

	m, err := NewBuilder(enc).
		Columns(2).
		Item("One", "pick", action.Params{"n": action.Int(1)}).
		Item("Two", "pick", action.Params{"n": action.Int(2)}).
		Item("Three", "pick", action.Params{"n": action.Int(3)}).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(m.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.Rows))
	}
	if len(m.Rows[0]) != 2 || len(m.Rows[1]) != 1 {
		t.Fatalf("row shapes = %d, %d; want 2, 1", len(m.Rows[0]), len(m.Rows[1]))
	}

	// Every action button decodes back to its record.
	a, err := dec.Decode(context.Background(), m.Rows[1][0].Token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a.Handler != "pick" {
		t.Fatalf("handler = %q", a.Handler)
	}
	if n, _ := a.Params["n"].AsInt(); n != 3 {
		t.Fatalf("param n = %d, want 3", n)
	}
}

func TestURLButtonsCarryNoToken(t *testing.T) {
	enc, _ := newEncoder(t)

	m, err := NewBuilder(enc).
		Item("Action", "go", nil).
		URL("Docs", "https://example.com/docs").
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var urlBtn Button
	for _, row := range m.Rows {
		for _, b := range row {
			if b.URL != "" {
				urlBtn = b
			}
		}
	}
	if urlBtn.URL != "https://example.com/docs" || urlBtn.Token != nil {
		t.Fatalf("url button = %+v", urlBtn)
	}
}

func TestNavigationRow(t *testing.T) {
	enc, _ := newEncoder(t)

	m, err := NewBuilder(enc).
		Item("Item", "pick", nil).
		Back("« Back", "nav.back", nil).
		Next("Next »", "nav.next", action.Params{"page": action.Int(2)}).
		Exit("Close", "nav.exit", nil).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	last := m.Rows[len(m.Rows)-1]
	if len(last) != 3 {
		t.Fatalf("navigation row has %d buttons, want 3", len(last))
	}
	for _, b := range last {
		if len(b.Token) == 0 {
			t.Fatalf("navigation button %q has no token", b.Text)
		}
	}
}

func TestExitCancelExclusive(t *testing.T) {
	enc, _ := newEncoder(t)

	_, err := NewBuilder(enc).
		Item("Item", "pick", nil).
		Exit("Close", "nav.exit", nil).
		Cancel("Cancel", "nav.cancel", nil).
		Build(context.Background())
	if err == nil {
		t.Fatal("exit and cancel together should fail")
	}
}

func TestBuilderValidation(t *testing.T) {
	enc, _ := newEncoder(t)
	ctx := context.Background()

	if _, err := NewBuilder(enc).Build(ctx); err == nil {
		t.Fatal("empty menu should fail")
	}
	if _, err := NewBuilder(enc).Columns(0).Item("x", "h", nil).Build(ctx); err == nil {
		t.Fatal("zero columns should fail")
	}
	if _, err := NewBuilder(enc).Columns(MaxColumns + 1).Item("x", "h", nil).Build(ctx); err == nil {
		t.Fatal("too many columns should fail")
	}
	if _, err := NewBuilder(enc).Item("", "h", nil).Build(ctx); err == nil {
		t.Fatal("empty button text should fail")
	}
	if _, err := NewBuilder(enc).Item(strings.Repeat("x", MaxTextSize+1), "h", nil).Build(ctx); err == nil {
		t.Fatal("oversized button text should fail")
	}
	if _, err := NewBuilder(enc).Item("x", "bad name", nil).Build(ctx); err == nil {
		t.Fatal("invalid handler should fail")
	}
	if _, err := NewBuilder(enc).URL("x", "").Build(ctx); err == nil {
		t.Fatal("empty url should fail")
	}
}

func TestFirstErrorSticks(t *testing.T) {
	enc, _ := newEncoder(t)

	// The builder keeps the first error even when later calls are fine.
	_, err := NewBuilder(enc).
		Columns(99).
		Item("fine", "ok", nil).
		Build(context.Background())
	if err == nil || !strings.Contains(err.Error(), "columns") {
		t.Fatalf("err = %v, want the columns error", err)
	}
}

func TestMaxRows(t *testing.T) {
	enc, _ := newEncoder(t)

	b := NewBuilder(enc).Columns(1).MaxRows(2)
	for i := 0; i < 3; i++ {
		b.Item("Item", "pick", nil)
	}
	if _, err := b.Build(context.Background()); err == nil {
		t.Fatal("exceeding max rows should fail")
	}
}
