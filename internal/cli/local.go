package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/pitwall/internal/domain/optimizer"
	"github.com/okian/pitwall/internal/domain/preferences"
	"github.com/okian/pitwall/internal/domain/recovery"
	"github.com/okian/pitwall/internal/domain/session"
	"github.com/okian/pitwall/pkg/logger"
)

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize a session file locally",
		Long:  "Run the setup optimizer on a session file and print the result as JSON",
		Example: `
# Optimize with preferences from the session metadata
pitwall optimize --session cota_fp2.json

# Overlay a questionnaire and print the full diagnostics
pitwall optimize --session cota_fp2.yaml --prefs rookie.json --pretty
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionPath, _ := cmd.Flags().GetString("session")
			prefsPath, _ := cmd.Flags().GetString("prefs")
			pretty, _ := cmd.Flags().GetBool("pretty")
			parallelism, _ := cmd.Flags().GetInt("parallelism")
			setupOnly, _ := cmd.Flags().GetBool("setup-only")

			res, err := optimizeFile(cmd.Context(), sessionPath, prefsPath, parallelism)
			if err != nil {
				return err
			}
			if setupOnly {
				return writeJSON(cmd.OutOrStdout(), res.OptimizedSetup, pretty)
			}
			return writeJSON(cmd.OutOrStdout(), res, pretty)
		},
	}
	cmd.Flags().StringP("session", "s", "", "Session document (JSON or YAML)")
	cmd.Flags().StringP("prefs", "p", "", "Preference questionnaire (JSON or YAML)")
	cmd.Flags().Bool("pretty", false, "Indent the output")
	cmd.Flags().Bool("setup-only", false, "Print only the optimized setup")
	cmd.Flags().Int("parallelism", 4, "Turns evaluated concurrently")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func optimizeFile(ctx context.Context, sessionPath, prefsPath string, parallelism int) (*optimizer.Result, error) {
	raw, isYAML, err := readDocument(sessionPath)
	if err != nil {
		return nil, err
	}
	doc, err := session.Load(raw, isYAML)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sessionPath, err)
	}

	prefs := preferences.FromDocument(doc)
	if prefsPath != "" {
		sub, subYAML, err := readDocument(prefsPath)
		if err != nil {
			return nil, err
		}
		if subYAML {
			if sub, err = session.YAMLToJSON(sub); err != nil {
				return nil, fmt.Errorf("%s: %w", prefsPath, err)
			}
		}
		if prefs, err = preferences.ApplySubmission(prefs, sub); err != nil {
			return nil, fmt.Errorf("%s: %w", prefsPath, err)
		}
	}

	res, err := optimizer.New(optimizer.WithParallelism(parallelism)).Optimize(ctx, doc, &prefs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sessionPath, err)
	}
	logger.Get().Info(ctx, "optimized session",
		logger.String("file", sessionPath),
		logger.Int("turns", len(doc.Turns)),
		logger.Int("clamps", len(res.Diagnostics.Clamps)),
	)
	return res, nil
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a session file",
		Long: `Check that a session file has every key the optimizer needs, including the
telemetry of each turn. Exits non-zero on the first problem.`,
		Example: `
pitwall validate --session cota_fp2.json
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionPath, _ := cmd.Flags().GetString("session")
			res, err := optimizeFile(cmd.Context(), sessionPath, "", 1)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d turns)\n", sessionPath, len(res.Diagnostics.PerTurnWeights))
			return err
		},
	}
	cmd.Flags().StringP("session", "s", "", "Session document (JSON or YAML)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build a driver recovery report",
		Long:  "Build a recovery plan from a race load estimate file and print it as JSON",
		Example: `
pitwall report --race singapore.json --pretty
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			racePath, _ := cmd.Flags().GetString("race")
			pretty, _ := cmd.Flags().GetBool("pretty")

			raw, _, err := readDocument(racePath)
			if err != nil {
				return err
			}
			data, err := recovery.Decode(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", racePath, err)
			}
			return writeJSON(cmd.OutOrStdout(), recovery.Generate(data), pretty)
		},
	}
	cmd.Flags().StringP("race", "r", "", "Race data file (JSON)")
	cmd.Flags().Bool("pretty", false, "Indent the output")
	_ = cmd.MarkFlagRequired("race")
	return cmd
}
