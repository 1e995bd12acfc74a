package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"graphclone/pkg/domain"
)

// printer renders record graphs as an indented tree.
type printer struct {
	w    io.Writer
	typ  func(a ...any) string
	id   func(a ...any) string
	key  func(a ...any) string
	warn func(a ...any) string
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:    w,
		typ:  color.New(color.FgCyan, color.Bold).SprintFunc(),
		id:   color.New(color.FgYellow).SprintFunc(),
		key:  color.New(color.FgHiBlack).SprintFunc(),
		warn: color.New(color.FgRed).SprintFunc(),
	}
}

func (p *printer) record(rec *domain.Record) {
	p.walk(rec, 0, make(map[*domain.Record]bool))
}

func (p *printer) walk(rec *domain.Record, depth int, seen map[*domain.Record]bool) {
	p.line(rec, depth)
	if seen[rec] {
		return
	}
	seen[rec] = true
	indent := strings.Repeat("  ", depth+1)
	for _, name := range rec.AssociationNames() {
		c, _ := rec.Collection(name)
		if c.Len() == 0 {
			continue
		}
		fmt.Fprintf(p.w, "%s%s\n", indent, p.key(name+":"))
		for _, member := range c.Records() {
			p.walk(member, depth+2, seen)
		}
	}
}

func (p *printer) line(rec *domain.Record, depth int) {
	id := p.warn("(unsaved)")
	if rec.ID != "" {
		id = p.id(rec.ID)
	}
	fmt.Fprintf(p.w, "%s%s %s%s\n", strings.Repeat("  ", depth), p.typ(rec.Type), id, formatAttributes(rec.Attributes))
}

func (p *printer) violations(res domain.Result) {
	for _, v := range res.Violations {
		fmt.Fprintf(p.w, "%s %s: %s\n", p.warn(string(v.Severity)), v.Rule, v.Message)
	}
}

func formatAttributes(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case nil:
			fmt.Fprintf(&b, " %s=<nil>", k)
		case string:
			fmt.Fprintf(&b, " %s=%q", k, v)
		default:
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
	}
	return b.String()
}
