// Package menu assembles inline keyboard menus whose buttons carry
// encoded action tokens.
//
// The builder is chat-platform agnostic: it produces rows of buttons
// with opaque token bytes, and the caller renders them into whatever
// its transport expects. All sizing rules are enforced by the token
// encoder; the builder only deals in layout.
package menu

import (
	"context"
	"fmt"

	"xdao.co/acttoken/action"
	"xdao.co/acttoken/token"
)

// Button is one rendered menu entry: either an action button carrying
// a token, or a plain URL button.
type Button struct {
	Text  string
	Token []byte // nil for URL buttons
	URL   string // empty for action buttons
}

// Menu is the built result: rows of buttons, navigation included.
type Menu struct {
	Rows [][]Button
}

// Layout bounds for the grid.
const (
	MinColumns  = 1
	MaxColumns  = 8
	MaxTextSize = 100
)

type item struct {
	text string
	act  action.Action
	url  string
}

type navButton struct {
	text string
	act  action.Action
}

// Builder accumulates items and layout, then encodes everything in one
// Build call. Methods chain; the first configuration error sticks and
// is reported by Build.
type Builder struct {
	enc     *token.Encoder
	items   []item
	columns int
	maxRows int

	back, next, exit, cancel *navButton

	err error
}

// NewBuilder returns a Builder that encodes buttons with enc.
func NewBuilder(enc *token.Encoder) *Builder {
	return &Builder{enc: enc, columns: 3}
}

// Item appends an action button.
func (b *Builder) Item(text, handler string, params action.Params) *Builder {
	b.addItem(text, action.Action{Handler: handler, Params: params})
	return b
}

// ItemAction appends an action button from a full record, for callers
// that need a TTL override or a prebuilt action.
func (b *Builder) ItemAction(text string, a action.Action) *Builder {
	b.addItem(text, a)
	return b
}

// URL appends a URL button. URL buttons carry no token.
func (b *Builder) URL(text, url string) *Builder {
	if b.err != nil {
		return b
	}
	if err := checkText(text); err != nil {
		b.err = err
		return b
	}
	if url == "" {
		b.err = fmt.Errorf("menu: empty url for button %q", text)
		return b
	}
	b.items = append(b.items, item{text: text, url: url})
	return b
}

// Columns sets the grid width.
func (b *Builder) Columns(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < MinColumns || n > MaxColumns {
		b.err = fmt.Errorf("menu: columns %d outside [%d, %d]", n, MinColumns, MaxColumns)
		return b
	}
	b.columns = n
	return b
}

// MaxRows caps the number of item rows (navigation rows excluded).
// Zero means unlimited.
func (b *Builder) MaxRows(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		b.err = fmt.Errorf("menu: negative max rows")
		return b
	}
	b.maxRows = n
	return b
}

// Back adds a back navigation button on the bottom row.
func (b *Builder) Back(text, handler string, params action.Params) *Builder {
	b.setNav(&b.back, text, handler, params)
	return b
}

// Next adds a next navigation button on the bottom row.
func (b *Builder) Next(text, handler string, params action.Params) *Builder {
	b.setNav(&b.next, text, handler, params)
	return b
}

// Exit adds an exit button. Mutually exclusive with Cancel.
func (b *Builder) Exit(text, handler string, params action.Params) *Builder {
	b.setNav(&b.exit, text, handler, params)
	return b
}

// Cancel adds a cancel button. Mutually exclusive with Exit.
func (b *Builder) Cancel(text, handler string, params action.Params) *Builder {
	b.setNav(&b.cancel, text, handler, params)
	return b
}

// Build encodes every action button and lays out the grid.
func (b *Builder) Build(ctx context.Context) (Menu, error) {
	if b.err != nil {
		return Menu{}, b.err
	}
	if len(b.items) == 0 {
		return Menu{}, fmt.Errorf("menu: no items")
	}
	if b.exit != nil && b.cancel != nil {
		return Menu{}, fmt.Errorf("menu: exit and cancel buttons are mutually exclusive")
	}

	buttons := make([]Button, 0, len(b.items))
	for _, it := range b.items {
		if it.url != "" {
			buttons = append(buttons, Button{Text: it.text, URL: it.url})
			continue
		}
		tok, err := b.enc.Encode(ctx, it.act)
		if err != nil {
			return Menu{}, fmt.Errorf("menu: button %q: %w", it.text, err)
		}
		buttons = append(buttons, Button{Text: it.text, Token: tok})
	}

	var rows [][]Button
	for start := 0; start < len(buttons); start += b.columns {
		end := min(start+b.columns, len(buttons))
		rows = append(rows, buttons[start:end])
	}
	if b.maxRows > 0 && len(rows) > b.maxRows {
		return Menu{}, fmt.Errorf("menu: %d rows exceed max %d", len(rows), b.maxRows)
	}

	nav, err := b.buildNav(ctx)
	if err != nil {
		return Menu{}, err
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return Menu{Rows: rows}, nil
}

func (b *Builder) buildNav(ctx context.Context) ([]Button, error) {
	var nav []Button
	for _, nb := range []*navButton{b.back, b.next, b.exit, b.cancel} {
		if nb == nil {
			continue
		}
		tok, err := b.enc.Encode(ctx, nb.act)
		if err != nil {
			return nil, fmt.Errorf("menu: navigation button %q: %w", nb.text, err)
		}
		nav = append(nav, Button{Text: nb.text, Token: tok})
	}
	return nav, nil
}

func (b *Builder) addItem(text string, a action.Action) {
	if b.err != nil {
		return
	}
	if err := checkText(text); err != nil {
		b.err = err
		return
	}
	if err := a.Validate(); err != nil {
		b.err = fmt.Errorf("menu: button %q: %w", text, err)
		return
	}
	b.items = append(b.items, item{text: text, act: a})
}

func (b *Builder) setNav(slot **navButton, text, handler string, params action.Params) {
	if b.err != nil {
		return
	}
	if err := checkText(text); err != nil {
		b.err = err
		return
	}
	a := action.Action{Handler: handler, Params: params}
	if err := a.Validate(); err != nil {
		b.err = fmt.Errorf("menu: navigation button %q: %w", text, err)
		return
	}
	*slot = &navButton{text: text, act: a}
}

func checkText(text string) error {
	if text == "" {
		return fmt.Errorf("menu: empty button text")
	}
	if len(text) > MaxTextSize {
		return fmt.Errorf("menu: button text exceeds %d bytes", MaxTextSize)
	}
	return nil
}
