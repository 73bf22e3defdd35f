package main

import (
	"io"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
)

// barProgress draws the upload progress as a terminal bar
type barProgress struct {
	w   io.Writer
	bar *pb.ProgressBar
}

func newBarProgress(w io.Writer) *barProgress {
	return &barProgress{w: w}
}

func (p *barProgress) Start(total int) {
	p.bar = pb.Full.New(total).SetWriter(p.w).Start()
}

func (p *barProgress) Step(path string) {
	if p.bar == nil {
		return
	}
	p.bar.Set("prefix", filepath.Base(path)+" ")
	p.bar.Increment()
}

func (p *barProgress) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
