// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/jllopis/trendsurf/pkg/artifact"
	"github.com/jllopis/trendsurf/pkg/pipeline"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

// narrator prints pipeline progress for a human watching the console.
type narrator struct {
	mu    sync.Mutex
	w     io.Writer
	total int
	color bool
}

func newNarrator(w io.Writer, total int) *narrator {
	n := &narrator{w: w, total: total}
	if f, ok := w.(*os.File); ok {
		n.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return n
}

func (n *narrator) paint(code, s string) string {
	if !n.color {
		return s
	}
	return code + s + ansiReset
}

// Emit implements pipeline.Emitter.
func (n *narrator) Emit(_ context.Context, ev pipeline.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch ev.Type {
	case pipeline.EventPipelineStarted:
		fmt.Fprintf(n.w, "%s %s\n", n.paint(ansiBold, "TrendSurf"), ev.Topic)
		fmt.Fprintf(n.w, "%s\n", n.paint(ansiDim, "run "+ev.RunID))
	case pipeline.EventIndexReady:
		fmt.Fprintf(n.w, "  %s indexed %s\n", n.paint(ansiGreen, "✓"), ev.Path)
	case pipeline.EventIndexFailed:
		mark, label := n.paint(ansiRed, "✗"), "indexing failed"
		if ev.Degraded {
			mark, label = n.paint(ansiYellow, "!"), "indexing failed, continuing without retrieval"
		}
		fmt.Fprintf(n.w, "  %s %s: %v\n", mark, label, ev.Err)
	case pipeline.EventStageStarted:
		fmt.Fprintf(n.w, "  [%d/%d] %s %s\n", ev.Sequence, n.total, ev.Stage, n.paint(ansiDim, ev.Agent))
	case pipeline.EventStageCompleted:
		fmt.Fprintf(n.w, "  %s %s: %d chars in %s -> %s\n", n.paint(ansiGreen, "✓"), ev.Stage,
			ev.Chars, ev.Elapsed.Round(100*time.Millisecond), filepath.Base(ev.Path))
	case pipeline.EventStageFailed:
		if ev.Degraded {
			fmt.Fprintf(n.w, "  %s %s: %v (continuing)\n", n.paint(ansiYellow, "!"), ev.Stage, ev.Err)
			return
		}
		fmt.Fprintf(n.w, "  %s %s: %v\n", n.paint(ansiRed, "✗"), ev.Stage, ev.Err)
	case pipeline.EventPipelineCompleted:
		label := n.paint(ansiGreen, "completed")
		if ev.Degraded {
			label = n.paint(ansiYellow, "completed with degraded stages")
		}
		fmt.Fprintf(n.w, "Pipeline %s in %s\n", label, ev.Elapsed.Round(time.Second))
	case pipeline.EventPipelineFailed:
		fmt.Fprintf(n.w, "Pipeline %s after %s\n", n.paint(ansiRed, "failed"), ev.Elapsed.Round(time.Second))
	}
}

// Summary prints where the artifacts went and what the agents concluded.
func (n *narrator) Summary(res *pipeline.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(res.Artifacts) > 0 || res.Status != pipeline.StatusFailed {
		fmt.Fprintf(n.w, "\nArtifacts in %s:\n", res.OutputDir)
		for _, a := range res.Artifacts {
			suffix := ""
			if a.Degraded {
				suffix = n.paint(ansiYellow, " (degraded)")
			}
			fmt.Fprintf(n.w, "  %s%s\n", filepath.Base(a.Path), suffix)
		}
		fmt.Fprintf(n.w, "  %s\n", artifact.AggregateFile)
	}

	in := res.Insights
	if in == nil {
		return
	}
	fmt.Fprintln(n.w)
	if c := in.Compliance; c != nil {
		fmt.Fprintf(n.w, "Compliance: %s (score %.0f, %d violations)\n", orDash(c.Status), c.Score, c.Violations)
		for _, item := range c.Checklist {
			mark := n.paint(ansiRed, "✗")
			if item.Pass {
				mark = n.paint(ansiGreen, "✓")
			}
			fmt.Fprintf(n.w, "  %s %s\n", mark, item.Item)
		}
	}
	for _, p := range in.Posts {
		fmt.Fprintf(n.w, "Post [%s] %d chars: %s\n", p.Platform, p.CharCount, firstLine(p.Content, 72))
	}
	if in.ReviewStatus != "" {
		fmt.Fprintf(n.w, "Review: %s (quality %.0f/10)\n", in.ReviewStatus, in.QualityScore)
	}
	if len(in.Flags) > 0 {
		fmt.Fprintln(n.w, n.paint(ansiYellow, "Flagged in drafted posts:"))
		for _, f := range in.Flags {
			fmt.Fprintf(n.w, "  [%s] %s %q\n", orDash(f.Platform), f.Kind, f.Match)
		}
	}
	if len(in.Sources) > 0 {
		fmt.Fprintln(n.w, "Sources:")
		for _, s := range in.Sources {
			fmt.Fprintf(n.w, "  %s %s\n", s.Title, n.paint(ansiDim, s.URL))
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func firstLine(s string, width int) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	if r := []rune(s); len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}
