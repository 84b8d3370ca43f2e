package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fleetscore/ratesheet-cli/internal/sheet"
)

var mappingsProvider string

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage saved provider column mappings",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with saved column mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		mappings, err := st.ListProviderMappings(ctx)
		if err != nil {
			return err
		}

		providers := make([]string, 0, len(mappings))
		for p := range mappings {
			providers = append(providers, p)
		}
		sort.Strings(providers)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tFIELDS")
		for _, p := range providers {
			fmt.Fprintf(tw, "%s\t%d\n", p, len(mappings[p]))
		}
		return tw.Flush()
	},
}

var mappingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a provider's saved column mapping as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		mapping, err := st.GetProviderMapping(ctx, mappingsProvider)
		if err != nil {
			return err
		}
		if mapping == nil {
			return eris.Errorf("no saved mapping for provider %q", mappingsProvider)
		}

		out, err := yaml.Marshal(mapping)
		if err != nil {
			return eris.Wrap(err, "marshal mapping")
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var mappingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a provider column mapping from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read file")
		}

		var raw map[string]int
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return eris.Wrap(err, "parse mapping")
		}

		// Round-trip through the canonical field set to drop unknown keys.
		mapping := sheet.FromStringMap(raw).ToStringMap()
		if len(mapping) == 0 {
			return eris.New("mapping contains no recognized fields")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveProviderMapping(ctx, mappingsProvider, mapping); err != nil {
			return err
		}

		zap.L().Info("mapping saved",
			zap.String("provider", mappingsProvider),
			zap.Int("fields", len(mapping)),
		)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{mappingsExportCmd, mappingsImportCmd} {
		c.Flags().StringVar(&mappingsProvider, "provider", "", "provider name")
		c.MarkFlagRequired("provider")
	}
	mappingsCmd.AddCommand(mappingsListCmd)
	mappingsCmd.AddCommand(mappingsExportCmd)
	mappingsCmd.AddCommand(mappingsImportCmd)
	rootCmd.AddCommand(mappingsCmd)
}
