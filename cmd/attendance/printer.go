package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/iliyamo/qr-attendance/internal/dashboard"
	"github.com/iliyamo/qr-attendance/internal/model"
)

// printer serializes output from callbacks running on different goroutines.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer { return &printer{w: w} }

func (p *printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) Errorf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(os.Stderr, format, args...)
}

func (p *printer) Rows(title string, rows []dashboard.Row) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n%s  (%d/%d presentes)\n", title, dashboard.PresentCount(rows), len(rows))
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALUMNO\tNOMBRE\tESTADO\tHORA")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.StudentID, r.Name, r.Status, r.Time)
	}
	_ = tw.Flush()
}

func (p *printer) Sessions(sessions []model.ClassSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSECCIÓN\tTEMA\tFECHA")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", s.ID, s.SectionID, s.Topic, s.Date)
	}
	_ = tw.Flush()
}
