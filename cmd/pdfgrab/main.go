package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"pdfgrab/internal/config"
	"pdfgrab/internal/downloader"
	"pdfgrab/internal/fetch"
	"pdfgrab/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "pdfgrab [url]",
	Short: "Crawl a directory listing and download every PDF it links to",
	Long: `pdfgrab walks an Apache/nginx style directory listing depth-first,
collects every link ending in .pdf and downloads them concurrently.

Settings can also come from PDFGRAB_* environment variables or a
pdfgrab.yaml file in the current directory or ~/.config/pdfgrab.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.NewViper(cmd.Flags())
		if err != nil {
			return err
		}
		cfg, err := config.Load(v, args[0])
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runDownload(cmd.Context(), cfg)
	},
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDownload(ctx context.Context, cfg config.Config) error {
	useTUI := !cfg.NoTUI && isatty.IsTerminal(os.Stdout.Fd())

	log, closeLog, err := newLogger(cfg, useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	engine := downloader.NewEngine(downloader.Config{
		Fetcher: fetch.NewClient(cfg.FetchOptions(log)),
		Logger:  log,
	})

	if useTUI {
		return runTUI(ctx, engine, cfg)
	}
	return runPlain(ctx, engine, cfg)
}

func runPlain(ctx context.Context, engine *downloader.Engine, cfg config.Config) error {
	out := ui.NewPlain(os.Stdout)
	sum, err := engine.Download(ctx, cfg.Request(), out.Observer())
	if err != nil {
		return err
	}
	out.PrintSummary(sum)
	return nil
}

func runTUI(ctx context.Context, engine *downloader.Engine, cfg config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewModel(engine, cfg.SeedURL))

	var (
		sum   downloader.Summary
		dlErr error
		done  = make(chan struct{})
	)
	go func() {
		defer close(done)
		sum, dlErr = engine.Download(ctx, cfg.Request(), ui.ProgramObserver(p))
		p.Send(ui.DoneMsg{Summary: sum, Err: dlErr})
	}()

	final, err := p.Run()

	// Quitting the UI stops the session; wait so no partial file is left.
	cancel()
	<-done

	if err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	if m, ok := final.(ui.Model); ok && m.State() != ui.StateDone {
		ui.NewPlain(os.Stdout).PrintSummary(sum)
	}
	return dlErr
}
