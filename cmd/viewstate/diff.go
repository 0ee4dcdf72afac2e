package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/snapshot"
)

func diffCmd() *cobra.Command {
	var (
		compact bool
		verify  bool
	)

	cmd := &cobra.Command{
		Use:   "diff <prev> <next>",
		Short: "Print the diff payload between two snapshots",
		Long: `Print the payload the diff engine would send to move a view from
one snapshot to another. Snapshots are JSON or YAML objects.

Deleted paths appear with a null value.

Examples:
  viewstate diff before.json after.json
  viewstate diff --verify before.yaml after.yaml`,
		Args: exactArgs(2, "viewstate diff <prev> <next>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := readSnapshot(args[0])
			if err != nil {
				return err
			}
			next, err := readSnapshot(args[1])
			if err != nil {
				return err
			}

			payload := snapshot.Diff(prev, next)

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(payload); err != nil {
				return err
			}

			if verify {
				applied := snapshot.CloneMap(prev)
				snapshot.Apply(applied, payload)
				if !snapshot.Equal(applied, next) {
					return errors.New("E402").WithDetail("applying the diff to prev does not reproduce next")
				}
				success(cmd.ErrOrStderr(), "payload reproduces %s", args[1])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "Print the payload on one line")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check that applying the payload to prev yields next")
	return cmd
}

// readSnapshot loads a JSON or YAML object.
func readSnapshot(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E501").Wrap(err)
	}

	var m map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, errors.New("E501").WithDetail(path + ": " + err.Error())
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
