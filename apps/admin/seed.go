package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

const (
	refKey    = "ref"
	refPrefix = "@"
)

var errUnknownRef = errors.New("unknown fixture reference")

// fixtures holds records per kind. A record may name itself with `ref`; later records
// refer to it with "@name", as a value or as a map key.
type fixtures map[string][]map[string]interface{}

func (cli *commandLine) seedCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load students, subjects and marks from a YAML fixtures file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := cli.requireTenant()
			if err != nil {
				return err
			}
			counts, err := cli.seed(cmd.Context(), tenant, file)
			if err != nil {
				return err
			}
			for _, kind := range record.Kinds {
				fmt.Fprintf(cli.out, "%s: %d\n", kind, counts[kind])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path of the fixtures file.")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// seed creates the fixture records in kind order (students, subjects, marks) and returns how many were created per kind.
func (cli *commandLine) seed(ctx context.Context, tenant, path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading fixtures")
	}
	var fx fixtures
	if err = yaml.Unmarshal(data, &fx); err != nil {
		return nil, errors.Wrap(err, "decoding fixtures")
	}
	for kind := range fx {
		if !knownKind(kind) {
			return nil, errors.Wrap(record.ErrUnknownKind, kind)
		}
	}

	refs := make(map[string]string)
	counts := make(map[string]int, len(record.Kinds))
	for _, kind := range record.Kinds {
		for i, raw := range fx[kind] {
			ref, _ := raw[refKey].(string)
			delete(raw, refKey)

			resolved, err := resolveRefs(raw, refs)
			if err != nil {
				return counts, errors.Wrapf(err, "%s[%d]", kind, i)
			}
			doc, err := cli.recordSvc.Create(ctx, tenant, kind, core.Document(resolved.(map[string]interface{})))
			if err != nil {
				return counts, errors.Wrapf(err, "seeding %s[%d]", kind, i)
			}
			if ref != "" {
				refs[ref] = doc.ID()
			}
			counts[kind]++
		}
	}
	return counts, nil
}

func knownKind(kind string) bool {
	for _, k := range record.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func resolveRefs(v interface{}, refs map[string]string) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, refPrefix) {
			return val, nil
		}
		id, ok := refs[strings.TrimPrefix(val, refPrefix)]
		if !ok {
			return nil, errors.Wrap(errUnknownRef, val)
		}
		return id, nil
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			key, err := resolveRefs(k, refs)
			if err != nil {
				return nil, err
			}
			if m[key.(string)], err = resolveRefs(vv, refs); err != nil {
				return nil, err
			}
		}
		return m, nil
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, vv := range val {
			r, err := resolveRefs(vv, refs)
			if err != nil {
				return nil, err
			}
			s[i] = r
		}
		return s, nil
	}
	return v, nil
}
