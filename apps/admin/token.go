package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	echoapi "github.com/trezcool/academia/apps/api/echo"
)

func (cli *commandLine) tokenCommand() *cobra.Command {
	var (
		subject string
		admin   bool
		roles   []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token bound to a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := cli.requireTenant()
			if err != nil {
				return err
			}
			if admin {
				roles = append(roles, echoapi.RoleAdmin)
			}
			claims := echoapi.NewClaims(cli.conf, strings.TrimSpace(subject), tenant, roles...)
			token, err := echoapi.GenerateToken(cli.conf, claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cli.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Who the token is issued to.")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role.")
	cmd.Flags().StringSliceVar(&roles, "role", []string{echoapi.RoleTeacher}, "Roles to grant.")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
