package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/resolution-cli/internal/pipeline"
	"github.com/sells-group/resolution-cli/pkg/oracle"
)

var capabilitiesJSON bool

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the providers and collectors the gateway offers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("gateway"); err != nil {
			return err
		}

		session := pipeline.NewSession(newGatewayClient(), cfg.Gateway.AccessCode)
		defer session.Teardown()

		caps, err := session.Capabilities(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "capabilities")
		}

		if capabilitiesJSON {
			return writeJSON(os.Stdout, caps)
		}
		formatCapabilities(os.Stdout, caps)
		return nil
	},
}

func init() {
	capabilitiesCmd.Flags().BoolVar(&capabilitiesJSON, "json", false, "print raw JSON")
	rootCmd.AddCommand(capabilitiesCmd)
}

func formatCapabilities(out io.Writer, caps *oracle.Capabilities) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if caps.Version != "" {
		_, _ = fmt.Fprintf(w, "Version:\t%s\n", caps.Version)
	}
	if caps.DefaultProvider != "" {
		_, _ = fmt.Fprintf(w, "Default:\t%s/%s\n", caps.DefaultProvider, caps.DefaultModel)
	}
	_, _ = fmt.Fprintln(w, "\nPROVIDER\tMODELS")
	for _, p := range caps.Providers {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", p.Name, strings.Join(p.Models, ", "))
	}
	_, _ = fmt.Fprintln(w, "\nCOLLECTOR\tNAME\tDESCRIPTION")
	for _, c := range caps.Collectors {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Description)
	}
	_ = w.Flush()
}
