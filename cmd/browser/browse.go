package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ffimoveis/imoveis/internal/browser"
	"github.com/ffimoveis/imoveis/internal/coordinator"
)

func runBrowser(ctx context.Context, opts *options) error {
	// The terminal belongs to the UI, so logs go to --log-file or nowhere.
	log, closeLog, err := opts.newLogger(io.Discard)
	if err != nil {
		return err
	}
	defer closeLog()

	source, err := opts.newSource(log)
	if err != nil {
		return err
	}

	cfg := browser.DefaultConfig()
	cfg.InitialQuery = opts.URL
	cfg.Timeout = opts.Timeout

	model := browser.New(ctx, coordinator.New(source, log), cfg)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("run browser: %w", err)
	}
	return nil
}
