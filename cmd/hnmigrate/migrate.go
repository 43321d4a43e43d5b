package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/omniaweb/hnmigrate/internal/history"
	"github.com/omniaweb/hnmigrate/internal/rewrite"
	"github.com/omniaweb/hnmigrate/internal/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func addSessionFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVar(path, "session", "", "session file (default ~/.hnmigrate/session.json)")
}

func sessionPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return config.DefaultSessionPath()
}

func loadSession(path string) (*session.State, string, error) {
	path, err := sessionPath(path)
	if err != nil {
		return nil, "", err
	}
	st, err := session.Load(path)
	if err != nil {
		return nil, "", err
	}
	if st.Payload == nil {
		return nil, "", errors.New("no export loaded (run 'hnmigrate plan <export-file>')")
	}
	return st, path, nil
}

func readDocument(path string) (*document.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := document.Parse(data, document.FormatAuto)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func writeDocument(path string, doc *document.Value) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := doc.Encode(f, "  "); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func newPlanCmd(opts *globalOptions) *cobra.Command {
	var (
		mappingFile string
		sessionFile string
	)

	cmd := &cobra.Command{
		Use:   "plan <export-file>",
		Short: "Load an export and propose service associations",
		Long: `Load an export and match its services against the destination gateway.

The destination mapping is read from --mapping, or fetched from the logged in
gateway. The result is kept in a session file used by 'associate', 'sections',
'rewrite' and 'import'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read export: %w", err)
			}

			st := session.New()
			if err := st.LoadExport(filepath.Base(args[0]), data); err != nil {
				return err
			}

			var mapping *document.Value
			if mappingFile != "" {
				if mapping, err = readDocument(mappingFile); err != nil {
					return err
				}
			} else {
				cfg, err := opts.loadProfile()
				if err != nil {
					return err
				}
				if cfg.IsAuthenticated() {
					client, err := opts.gatewayClient(cfg, opts.timeout, true)
					if err != nil {
						return err
					}
					ctx, cancel := signalContext()
					mapping, err = client.Mapping(ctx)
					cancel()
					if err != nil {
						return err
					}
				}
			}
			if mapping != nil {
				st.SetNewMapping(mapping)
			}

			path, err := sessionPath(sessionFile)
			if err != nil {
				return err
			}
			if err := st.Save(path); err != nil {
				return err
			}

			printPlan(opts.stdout, st)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "destination mapping file (default: fetch from the gateway)")
	addSessionFlag(cmd, &sessionFile)
	return cmd
}

func printPlan(out io.Writer, st *session.State) {
	sum := st.Summary()
	fmt.Fprintf(out, "Export: %s\n", st.SourceName)
	for _, cs := range sum.CameraServices {
		fmt.Fprintf(out, "  %s: %d cameras\n", cs.Label, len(cs.Cameras))
	}

	fmt.Fprintln(out, "\nAssociations:")
	if st.Associations == nil {
		fmt.Fprintln(out, "  (no destination mapping)")
	} else {
		for _, row := range st.Associations.Rows() {
			selected := "UNRESOLVED"
			if row.Selected != "" {
				selected = row.Selected + " (" + string(row.Origin) + ")"
			}
			fmt.Fprintf(out, "  %-40s -> %s\n", row.Old.Label(), selected)
			if row.Selected == "" {
				for _, c := range row.Candidates {
					fmt.Fprintf(out, "      candidate: %s\n", c.Label())
				}
			}
		}
	}

	printSections(out, st)

	if problems := st.Problems(); len(problems) > 0 {
		fmt.Fprintln(out, "\nNot ready:")
		for _, p := range problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	} else {
		fmt.Fprintln(out, "\nReady to import.")
	}
}

func printSections(out io.Writer, st *session.State) {
	fmt.Fprintln(out, "\nSections:")
	for _, key := range st.Selection.Eligible() {
		state, _ := st.Selection.State(key)
		fmt.Fprintf(out, "  %-16s %s\n", key, state.Kind)
	}
}

func newAssociateCmd(opts *globalOptions) *cobra.Command {
	var sessionFile string

	cmd := &cobra.Command{
		Use:   "associate <old-guid> [new-guid]",
		Short: "Associate an old service with a new one, or clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, path, err := loadSession(sessionFile)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				err = st.Clear(args[0])
			} else {
				err = st.Select(args[0], args[1])
			}
			if err != nil {
				return err
			}
			if err := st.Save(path); err != nil {
				return err
			}

			if len(args) == 1 {
				fmt.Fprintf(opts.stdout, "Cleared association of %s\n", args[0])
			} else {
				fmt.Fprintf(opts.stdout, "Associated %s -> %s\n", args[0], args[1])
			}
			if unresolved := st.Associations.Unresolved(); len(unresolved) > 0 {
				fmt.Fprintf(opts.stdout, "%d services still unresolved\n", len(unresolved))
			}
			return nil
		},
	}

	addSessionFlag(cmd, &sessionFile)
	return cmd
}

func newSectionsCmd(opts *globalOptions) *cobra.Command {
	var sessionFile string

	cmd := &cobra.Command{
		Use:   "sections [SECTION...]",
		Short: "Show or choose the sections sent by import",
		Long: `Without arguments, show the section selection. With arguments, send exactly
those sections plus the ones that are always sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, path, err := loadSession(sessionFile)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				if err := st.SelectOnly(args); err != nil {
					return err
				}
				if err := st.Save(path); err != nil {
					return err
				}
			}
			printSections(opts.stdout, st)
			return nil
		},
	}

	addSessionFlag(cmd, &sessionFile)
	return cmd
}

func newRewriteCmd(opts *globalOptions) *cobra.Command {
	var (
		sessionFile string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Build the import body offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := loadSession(sessionFile)
			if err != nil {
				return err
			}
			body, res, err := st.BuildImport()
			if err != nil {
				return err
			}

			if output == "" {
				if err := body.Encode(opts.stdout, "  "); err != nil {
					return err
				}
			} else if err := writeDocument(output, body); err != nil {
				return err
			}
			printResult(opts.logger(), res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	addSessionFlag(cmd, &sessionFile)
	cmd.AddCommand(newRewriteTypeCmd(opts))
	return cmd
}

func newRewriteTypeCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "type <file> <service-type> <new-guid>",
		Short: "Point every reference of one service type at a new identifier",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			found, err := rewrite.ApplyToType(doc, args[1], args[2])
			if err != nil {
				return err
			}
			if !found {
				logger := opts.logger()
				logger.Warn().Str("type", args[1]).Msg("no reference found, identifier recorded under serviceGuids")
			}
			if output == "" {
				return doc.Encode(opts.stdout, "  ")
			}
			return writeDocument(output, doc)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var (
		sessionFile string
		noHistory   bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Submit the rewritten export to the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			st, _, err := loadSession(sessionFile)
			if err != nil {
				return err
			}

			readiness := st.Readiness(session.AuthState{BaseURL: cfg.BaseURL, Token: cfg.AccessToken})
			if !readiness.Ready {
				return fmt.Errorf("import not ready:\n  - %s", strings.Join(readiness.Reasons, "\n  - "))
			}

			client, err := opts.gatewayClient(cfg, -1, true)
			if err != nil {
				return err
			}
			body, res, err := st.BuildImport()
			if err != nil {
				return err
			}
			printResult(opts.logger(), res)

			ctx, cancel := signalContext()
			defer cancel()

			resp, importErr := client.Import(ctx, body)
			if resp != nil {
				fmt.Fprintln(opts.stdout, resp.FormatImport())
			}
			success := importErr == nil && resp != nil && resp.Success

			if !noHistory {
				message := ""
				if resp != nil {
					message = resp.FormatImport()
				} else if importErr != nil {
					message = importErr.Error()
				}
				recordImport(ctx, opts, &history.Entry{
					BaseURL:      cfg.BaseURL,
					SourceName:   st.SourceName,
					Sections:     st.Selection.Selected(),
					Associations: len(st.AssociationMap()),
					Replacements: res.Replacements,
					Unmatched:    res.Unmatched,
					Success:      success,
					Message:      message,
				})
			}

			if importErr != nil {
				return importErr
			}
			if !success {
				return errors.New("import failed")
			}
			return nil
		},
	}

	addSessionFlag(cmd, &sessionFile)
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the import locally")
	return cmd
}

// recordImport logs a failure to record instead of failing the import.
func recordImport(ctx context.Context, opts *globalOptions, e *history.Entry) {
	logger := opts.logger()
	path, err := config.DefaultHistoryPath()
	if err != nil {
		logger.Warn().Err(err).Msg("import history unavailable")
		return
	}
	store, err := history.Open(path, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("import history unavailable")
		return
	}
	defer store.Close()
	if err := store.Record(ctx, e); err != nil {
		logger.Warn().Err(err).Msg("failed to record import")
	}
}

func printResult(logger zerolog.Logger, res rewrite.Result) {
	logger.Info().Int("replacements", res.Replacements).Msg("identifiers rewritten")
	if len(res.Unmatched) > 0 {
		logger.Warn().Strs("unmatched", res.Unmatched).Msg("associated services not referenced by the export")
	}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded imports",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultHistoryPath()
			if err != nil {
				return err
			}
			store, err := history.Open(path, opts.logger())
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(opts.stdout, "No imports recorded")
				return nil
			}
			for _, e := range entries {
				status := "ok"
				if !e.Success {
					status = "FAILED"
				}
				message, _, _ := strings.Cut(e.Message, "\n")
				fmt.Fprintf(opts.stdout, "%s  %-6s %s  %s  [%s] %d replaced  %s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04"),
					status,
					e.BaseURL,
					e.SourceName,
					strings.Join(e.Sections, ","),
					e.Replacements,
					message,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "number of imports to show")
	return cmd
}
