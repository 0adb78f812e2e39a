package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/syftsync/internal/client"
	"github.com/openmined/syftsync/internal/hasher"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

func printSummary(w io.Writer, s *client.Summary, err error) {
	status := green.Render("SYNCED")
	if err != nil {
		status = red.Render("FAILED")
	}
	if s != nil {
		fmt.Fprintf(w, "%s %s\n", status, lightGray.Render(s.String()))
	}
	if err != nil {
		fmt.Fprintf(w, "%s %s\n", gray.Render("error"), red.Render(err.Error()))
	}
}

func printHashStatus(w io.Writer, s *hasher.Status) {
	state := cyan.Render("QUEUED")
	switch {
	case s.Failed:
		state = red.Render("FAILED")
	case s.Done:
		state = green.Render("DONE")
	case s.Started:
		state = cyan.Render("RUNNING")
	}

	fmt.Fprintf(w, "%s %s\n", state, s.ID)
	fmt.Fprintf(w, "%s %s\n", gray.Render("path  "), s.Path)
	fmt.Fprintf(w, "%s %s\n", gray.Render("hash  "), s.Algorithm)
	fmt.Fprintf(w, "%s %d\n", gray.Render("hashed"), s.Hashed)
	fmt.Fprintf(w, "%s %d\n", gray.Render("errors"), s.Errors)
	if s.Message != "" {
		fmt.Fprintf(w, "%s %s\n", gray.Render("msg   "), s.Message)
	}
}
