package editor

// RichText is what the editor needs from a rich-text widget.
type RichText interface {
	HTML() string
	SetHTML(html string)
	// InsertText inserts literal text at the cursor.
	InsertText(text string)
}

// HTMLBuffer is a RichText held in memory. The cursor is a byte offset into
// the HTML and sits at the end unless moved.
type HTMLBuffer struct {
	html   string
	cursor int
}

// NewHTMLBuffer returns a buffer holding html with the cursor at the end.
func NewHTMLBuffer(html string) *HTMLBuffer {
	return &HTMLBuffer{html: html, cursor: len(html)}
}

func (b *HTMLBuffer) HTML() string {
	return b.html
}

// SetHTML replaces the content and moves the cursor to the end.
func (b *HTMLBuffer) SetHTML(html string) {
	b.html = html
	b.cursor = len(html)
}

// InsertText inserts text at the cursor and leaves the cursor after it.
func (b *HTMLBuffer) InsertText(text string) {
	b.html = b.html[:b.cursor] + text + b.html[b.cursor:]
	b.cursor += len(text)
}

// MoveCursor places the cursor at pos, clamped to the content.
func (b *HTMLBuffer) MoveCursor(pos int) {
	switch {
	case pos < 0:
		pos = 0
	case pos > len(b.html):
		pos = len(b.html)
	}
	b.cursor = pos
}

// Cursor returns the cursor offset.
func (b *HTMLBuffer) Cursor() int {
	return b.cursor
}
