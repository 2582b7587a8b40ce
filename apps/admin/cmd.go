package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/fieldkey"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/storage/database"
)

var (
	isTerminalFunc = term.IsTerminal  // mockable
	migrateFunc    = database.Migrate // mockable

	errHelp           = errors.New("help provided")
	errTenantRequired = errors.New("--tenant is required")
)

type commandLine struct {
	conf      *core.Config
	store     core.DocumentStore
	fieldSvc  *fieldkey.Service
	recordSvc *record.Service
	out       io.Writer

	tenant string
}

func newCommandLine(conf *core.Config, store core.DocumentStore, validate *validator.Validate, out io.Writer) *commandLine {
	return &commandLine{
		conf:      conf,
		store:     store,
		fieldSvc:  fieldkey.NewService(store, fieldkey.NewDiscoverer(store, conf), validate, conf),
		recordSvc: record.NewService(store, conf),
		out:       out,
	}
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCommand()
	if len(args) < 2 {
		_ = root.Usage()
		return errHelp
	}
	root.SetArgs(args[1:])
	return root.Execute()
}

func (cli *commandLine) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         cli.conf.AppName + " administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          helpCommand,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.PersistentFlags().StringVar(&cli.tenant, "tenant", "", "The management id commands act for.")

	root.AddCommand(
		cli.fieldsCommand(),
		cli.seedCommand(),
		cli.tokenCommand(),
		cli.migrateCommand(),
	)
	return root
}

func helpCommand(cmd *cobra.Command, _ []string) error {
	_ = cmd.Help()
	return errHelp
}

func (cli *commandLine) requireTenant() (string, error) {
	tenant := strings.TrimSpace(cli.tenant)
	if tenant == "" {
		return "", errTenantRequired
	}
	return tenant, nil
}

func (cli *commandLine) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command (up, down, status, ...) against the postgres engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateFunc(cmd.Context(), cli.store, args[0], args[1:]...)
		},
	}
}

// Output

func (cli *commandLine) isTTY() bool {
	f, ok := cli.out.(*os.File)
	return ok && isTerminalFunc(int(f.Fd()))
}

// print writes a table on a terminal and indented JSON of `v` otherwise.
func (cli *commandLine) print(v interface{}, header []string, rows [][]string) error {
	if !cli.isTTY() {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}
