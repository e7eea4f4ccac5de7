package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"

	"github.com/rickgao/realtime-feed/internal/market"
	"github.com/rickgao/realtime-feed/internal/sink"
)

var prettyJSON = &ojg.Options{Indent: 2, Sort: true}

// printer writes events to out as indented JSON and errors to errOut.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	verbose bool
}

func newPrinter(out, errOut io.Writer, verbose bool) *printer {
	return &printer{out: out, errOut: errOut, verbose: verbose}
}

// OnEvent prints the event data. In verbose mode the delivery metadata is
// printed around it.
func (p *printer) OnEvent(e sink.Event) {
	var doc any
	if len(e.Data) > 0 {
		parsed, err := oj.Parse(e.Data)
		if err != nil {
			parsed = string(e.Data)
		}
		doc = parsed
	}

	if p.verbose {
		doc = map[string]any{
			"subscription": e.SubscriptionID,
			"kind":         e.Kind.String(),
			"field":        e.Field,
			"raw":          e.Raw,
			"received_at":  e.ReceivedAt.UTC().Format(time.RFC3339Nano),
			"data":         doc,
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, oj.JSON(doc, prettyJSON))
}

func (p *printer) OnError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "error: %v\n", err)
}

// printChange writes one snapshot change as a single line.
func (p *printer) printChange(c market.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := "active"
	if c.Line.Disabled {
		state = "disabled"
	}
	fmt.Fprintf(p.out, "%s seq=%d %s source=%s\n", c.Line.Key, c.Line.SequenceNumber, state, c.Source)
}

// printDocument writes a whole JSON document.
func (p *printer) printDocument(doc string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, doc)
}
