// Package cli implements the pitwall operator command line: local
// optimization and validation of session files, recovery reports, and
// submission of sessions to a running server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/pitwall/pkg/logger"
)

// NewRootCommand builds the pitwall command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pitwall",
		Short: "Setup optimizer tools",
		Long: `Tools for the pitwall setup optimizer.

Session files may be JSON or YAML; the format follows the file extension.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("log-format")
			level, _ := cmd.Flags().GetString("log-level")
			if err := logger.Init(logger.WithFormat(format), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			return logger.SetLevelString(level)
		},
	}
	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "text", "Log format: text or json")

	root.AddCommand(
		newOptimizeCmd(),
		newValidateCmd(),
		newReportCmd(),
		newSubmitCmd(),
	)
	return root
}

// readDocument reads a session or preference file. isYAML reports whether the
// extension names a YAML document.
func readDocument(path string) (raw []byte, isYAML bool, err error) {
	if path == "" {
		return nil, false, fmt.Errorf("no file given")
	}
	raw, err = os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return raw, true, nil
	default:
		return raw, false, nil
	}
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
