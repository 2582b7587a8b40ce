package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/academia/core/fieldkey"
)

func (cli *commandLine) fieldsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Manage the data field key catalog",
		RunE:  helpCommand,
	}

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Rediscover the tenant's fields and update the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := cli.requireTenant()
			if err != nil {
				return err
			}
			n, err := cli.fieldSvc.UpsertFromDiscovery(cmd.Context(), tenant, fieldkey.UpsertOptions{})
			if err != nil {
				if errors.Cause(err) == fieldkey.ErrNoData {
					fmt.Fprintln(cli.out, "no records to discover fields from; seed some first")
					return nil
				}
				return err
			}
			fmt.Fprintf(cli.out, "%d field keys refreshed\n", n)
			return nil
		},
	}

	var custom bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Print the tenant's catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := cli.requireTenant()
			if err != nil {
				return err
			}
			listing, err := cli.fieldSvc.ListFields(cmd.Context(), tenant, fieldkey.ListOptions{Custom: custom})
			if err != nil {
				if errors.Cause(err) == fieldkey.ErrNoData {
					fmt.Fprintln(cli.out, "no field keys yet")
					return nil
				}
				return err
			}
			if custom {
				return cli.print(listing, []string{"ID", "KEY SET", "FIELDS", "CALCULATIONS"}, keySetRows(listing.KeySets))
			}
			return cli.print(listing, []string{"PLACEHOLDER", "PATH", "LABEL", "TYPE", "DEFAULT"}, fieldRows(listing.Fields))
		},
	}
	list.Flags().BoolVar(&custom, "custom", false, "List custom key sets instead of fields.")

	cmd.AddCommand(refresh, list)
	return cmd
}

func fieldRows(fields []fieldkey.Field) [][]string {
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{f.PlaceholderKey, f.DBFieldPath, f.Label, f.DataType, f.DefaultValue})
	}
	return rows
}

func keySetRows(sets []fieldkey.KeySet) [][]string {
	rows := make([][]string, 0, len(sets))
	for _, ks := range sets {
		rows = append(rows, []string{
			ks.ID,
			ks.KeyName,
			strconv.Itoa(len(ks.ManualFields) + len(ks.TestFields)),
			strconv.Itoa(len(ks.Calculations)),
		})
	}
	return rows
}
