package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes environment overrides, e.g. ASSESSCTL_SERVER.
const envPrefix = "ASSESSCTL"

// app holds the resolved global options shared by every command.
type app struct {
	out       io.Writer
	v         *viper.Viper
	serverURL string
	outputFmt string
	userID    string
	userName  string
	userEmail string
	userRole  string
	token     string
}

func (a *app) resolve() error {
	a.serverURL = strings.TrimRight(a.v.GetString("server"), "/")
	a.outputFmt = a.v.GetString("output")
	a.userID = a.v.GetString("user-id")
	a.userName = a.v.GetString("user-name")
	a.userEmail = a.v.GetString("user-email")
	a.userRole = a.v.GetString("user-role")
	a.token = a.v.GetString("token")
	switch a.outputFmt {
	case "table", "json", "yaml":
		return nil
	}
	return fmt.Errorf("unsupported output format %q (use table, json or yaml)", a.outputFmt)
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "assessctl",
		Short: "CLI for the governance assessment server",
		Long: `assessctl talks to the assessment server HTTP API.

Organizations fill in and submit evaluations, evaluators review and decide
them, administrators assign reviews and read platform statistics. The
caller identity is sent as X-User-* headers, or as a bearer token with
--token.

Every global flag can also be set through the environment, for example
ASSESSCTL_SERVER or ASSESSCTL_USER_ROLE.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.resolve()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("server", "http://localhost:8080", "Assessment server URL")
	flags.StringP("output", "o", "table", "Output format: table, json, yaml")
	flags.String("user-id", "", "Caller id sent as X-User-Id")
	flags.String("user-name", "", "Caller display name sent as X-User-Name")
	flags.String("user-email", "", "Caller email sent as X-User-Email")
	flags.String("user-role", "", "Caller role: ORGANIZATION, EVALUATOR or ADMINISTRATOR")
	flags.String("token", "", "Bearer token, used instead of the X-User-* headers")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	rootCmd.AddCommand(
		newHealthCmd(a),
		newCatalogCmd(a),
		newEvaluationsCmd(a),
		newResponsesCmd(a),
		newReviewCmd(a),
		newStatsCmd(a),
	)
	return rootCmd
}
