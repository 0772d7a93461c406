package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"quiz-publisher/internal/domain"
)

// block is one direct child of the document body, located by byte offsets into
// the original part.
type block struct {
	start, end int64
	paragraph  bool
	text       string
}

type body struct {
	prefix string
	blocks []block
}

func parseBody(raw []byte) (*body, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	b := &body{}
	depth, bodyDepth := 0, -1
	var (
		cur    *block
		text   strings.Builder
		inText bool
	)
	for {
		offset := dec.InputOffset()
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case bodyDepth < 0 && t.Name.Local == "body":
				bodyDepth = depth
				b.prefix = t.Name.Space
			case bodyDepth > 0 && depth == bodyDepth+1:
				cur = &block{start: offset, paragraph: t.Name.Local == "p"}
				text.Reset()
			case cur != nil && cur.paragraph && t.Name.Local == "t":
				inText = true
			}
		case xml.EndElement:
			depth--
			switch {
			case cur != nil && depth == bodyDepth:
				cur.end = dec.InputOffset()
				cur.text = text.String()
				b.blocks = append(b.blocks, *cur)
				cur = nil
			case bodyDepth > 0 && depth < bodyDepth:
				return b, nil
			case t.Name.Local == "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}
	if bodyDepth < 0 {
		return nil, errors.New("document has no body")
	}
	return b, nil
}

// markers returns the indexes of the first start-marker paragraph and the first
// end-marker paragraph after it, or -1 for either that is missing.
func (b *body) markers() (int, int) {
	start := -1
	for i, blk := range b.blocks {
		if blk.paragraph && strings.Contains(blk.text, StartMarker) {
			start = i
			break
		}
	}
	if start < 0 {
		return -1, -1
	}
	for i := start + 1; i < len(b.blocks); i++ {
		if b.blocks[i].paragraph && strings.Contains(b.blocks[i].text, EndMarker) {
			return start, i
		}
	}
	return start, -1
}

// splice replaces the start block and everything up to the end block with the
// intro and question paragraphs. The end block is kept.
func (b *body) splice(raw []byte, start, end int, intro string, questions []domain.QuestionRecord) []byte {
	w := &writer{prefix: b.prefix}
	w.paragraph(intro, style{size: 28, bold: true, color: "000080", center: true})
	for _, q := range questions {
		w.question(q)
	}

	out := make([]byte, 0, len(raw)+w.buf.Len())
	out = append(out, raw[:b.blocks[start].start]...)
	out = append(out, w.buf.Bytes()...)
	out = append(out, raw[b.blocks[end].start:]...)
	return out
}

type style struct {
	size   int // half-points
	bold   bool
	color  string
	center bool
}

type writer struct {
	prefix string
	buf    bytes.Buffer
}

func (w *writer) question(q domain.QuestionRecord) {
	w.paragraph("Q: "+orDefault(q.Question, "No question text"), style{size: 24})
	for i, opt := range q.Options {
		w.paragraph(domain.OptionLabels[i]+") "+orDefault(opt, "No option"), style{size: 20})
	}
	w.paragraph("Answer: "+orDefault(q.Answer, "Not provided"), style{size: 20, bold: true})
	w.empty()
}

func (w *writer) empty() {
	w.buf.WriteString("<" + w.tag("p") + "/>")
}

func (w *writer) paragraph(text string, s style) {
	w.open("p")
	if s.center {
		w.open("pPr")
		w.leaf("jc", "center")
		w.close("pPr")
	}
	w.open("r")
	w.open("rPr")
	if s.bold {
		w.leaf("b", "")
	}
	if s.color != "" {
		w.leaf("color", s.color)
	}
	if s.size > 0 {
		size := strconv.Itoa(s.size)
		w.leaf("sz", size)
		w.leaf("szCs", size)
	}
	w.close("rPr")
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			w.leaf("br", "")
		}
		w.buf.WriteString("<" + w.tag("t") + ` xml:space="preserve">`)
		// EscapeText only fails on writer errors; bytes.Buffer never returns one.
		_ = xml.EscapeText(&w.buf, []byte(line))
		w.close("t")
	}
	w.close("r")
	w.close("p")
}

func (w *writer) tag(local string) string {
	if w.prefix == "" {
		return local
	}
	return w.prefix + ":" + local
}

func (w *writer) open(local string) {
	w.buf.WriteString("<" + w.tag(local) + ">")
}

func (w *writer) close(local string) {
	w.buf.WriteString("</" + w.tag(local) + ">")
}

func (w *writer) leaf(local, val string) {
	if val == "" {
		w.buf.WriteString("<" + w.tag(local) + "/>")
		return
	}
	w.buf.WriteString("<" + w.tag(local) + " " + w.tag("val") + `="` + val + `"/>`)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
