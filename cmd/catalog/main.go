// Package main manages the personal media catalog from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tatianab/branching-tales/internal/catalog"
	"github.com/tatianab/branching-tales/internal/config"
	"github.com/tatianab/branching-tales/internal/logging"
	"github.com/tatianab/branching-tales/internal/storage"
	"go.uber.org/zap"
)

const usage = `usage: catalog <command> [flags]

commands:
  add     -type movies|cartoons|series -title T [-rating N] [-date YYYY-MM-DD] [-comment C]
  list    [-type T] [-sort date-desc|date-asc|rating-desc|rating-asc|title-asc|title-desc]
  delete  -type T -id N
  export  [-dir D]
  import  -file F
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(ctx, os.Args[1:], store, cfg.UserID, logger, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, store storage.Store, userID string, logger *zap.Logger, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return flag.ErrHelp
	}
	c, err := catalog.Open(ctx, store, userID, logger)
	if err != nil {
		return err
	}

	cmd, args := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	switch cmd {
	case "add":
		var item catalog.Item
		fs.StringVar(&item.Type, "type", catalog.Movies, "category")
		fs.StringVar(&item.Title, "title", "", "title")
		fs.Float64Var(&item.Rating, "rating", 0, "rating from 0 to 10")
		fs.StringVar(&item.Date, "date", "", "date watched (default today)")
		fs.StringVar(&item.Comment, "comment", "", "comment")
		if err := fs.Parse(args); err != nil {
			return err
		}
		added, err := c.Add(ctx, item)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Запись добавлена: %d %s\n", added.ID, added.Title)

	case "list":
		category := fs.String("type", "", "category (default all)")
		sortKey := fs.String("sort", catalog.DateDesc, "sort key")
		if err := fs.Parse(args); err != nil {
			return err
		}
		categories := catalog.Categories
		if *category != "" {
			categories = []string{*category}
		}
		for _, cat := range categories {
			items, err := c.Items(cat, *sortKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "== %s (%d)\n", cat, len(items))
			for _, it := range items {
				line := fmt.Sprintf("%d\t%s\t%g/10\t%s", it.ID, it.Title, it.Rating, it.Date)
				if it.Comment != "" {
					line += "\t" + it.Comment
				}
				fmt.Fprintln(out, line)
			}
		}

	case "delete":
		category := fs.String("type", "", "category")
		id := fs.Int64("id", 0, "item id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := c.Delete(ctx, *category, *id); err != nil {
			return err
		}
		fmt.Fprintln(out, "Запись удалена")

	case "export":
		dir := fs.String("dir", ".", "output directory")
		if err := fs.Parse(args); err != nil {
			return err
		}
		name, data, err := c.Export()
		if err != nil {
			return err
		}
		path := filepath.Join(*dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(out, "Данные экспортированы: %s\n", path)

	case "import":
		file := fs.String("file", "", "exported JSON file")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*file) == "" {
			return fmt.Errorf("import: -file is required")
		}
		data, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("read import: %w", err)
		}
		if err := c.Import(ctx, data); err != nil {
			if errors.Is(err, catalog.ErrInvalidFormat) {
				return fmt.Errorf("неверный формат файла: %w", err)
			}
			return err
		}
		fmt.Fprintln(out, "Данные успешно импортированы")

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q: %w", cmd, flag.ErrHelp)
	}
	return nil
}
