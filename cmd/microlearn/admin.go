package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pavelanni/microlearn/internal/auth"
	"github.com/pavelanni/microlearn/internal/store"
)

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a learner account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			db, err := openStore(v)
			if err != nil {
				return err
			}
			defer db.Close()

			svc, err := auth.NewService(db)
			if err != nil {
				return err
			}
			username := v.GetString("username")
			if err := svc.Register(context.Background(), username, v.GetString("password")); err != nil {
				return err
			}
			slog.Info("registered account", "username", username)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringP("username", "u", "", "Account username (required)")
	f.StringP("password", "p", "", "Account password (or set MICROLEARN_PASSWORD)")
	addDBFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func importQuizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-quiz FILE...",
		Short: "Import quiz items from JSON files for --quiz-source stored",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			db, err := openStore(viperForCmd(cmd))
			if err != nil {
				return err
			}
			defer db.Close()
			return importQuizFiles(context.Background(), db, args)
		},
	}
	addDBFlags(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func importQuizFiles(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		name := filepath.Clean(path)
		n, err := db.ImportQuizItems(ctx, name, data)
		switch {
		case errors.Is(err, store.ErrAlreadyImported):
			slog.Info("quiz file unchanged, skipping", "path", path)
		case errors.Is(err, store.ErrImportChanged):
			slog.Warn("quiz file changed since last import, skipping to avoid duplicate items", "path", path)
		case err != nil:
			return err
		default:
			slog.Info("imported quiz file", "path", path, "count", n)
		}
	}
	return nil
}

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Export a user's saved results as JSON",
		RunE:  runResults,
	}
	f := cmd.Flags()
	f.StringP("username", "u", "", "Account whose results to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addDBFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func runResults(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportResultsFor(context.Background(), v.GetString("username"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
