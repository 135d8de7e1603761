package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/report"
)

// target parses the "<address> <chain>" argument pair.
func target(args []string) (string, domain.Chain, error) {
	chain, err := domain.ParseChain(args[1])
	if err != nil {
		return "", "", err
	}
	if err := chain.ValidateAddress(args[0]); err != nil {
		return "", "", err
	}
	return args[0], chain, nil
}

func newLookupCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lookup <address> <chain>",
		Short: "Run the full pipeline for a token and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, chain, err := target(args)
			if err != nil {
				return err
			}
			pipe, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}

			res, runErr := pipe.Run(cmd.Context(), address, chain)
			if asJSON {
				err = report.WriteJSON(a.stdout, res)
			} else {
				err = report.WriteResult(a.stdout, res)
			}
			if runErr != nil {
				return runErr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newGraphCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "graph <address> <chain>",
		Short: "Publish only the holder graph for a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, chain, err := target(args)
			if err != nil {
				return err
			}
			pipe, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}

			g, err := pipe.RunGraph(cmd.Context(), address, chain)
			if err != nil {
				return err
			}
			if asJSON {
				return report.WriteJSON(a.stdout, g)
			}
			fmt.Fprintf(a.stdout, "page:  %s\nimage: %s\n", g.PageURL, g.ScreenshotURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <symbol> <chain>",
		Short: "Resolve a ticker symbol to contract addresses on a chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := domain.ParseChain(args[1])
			if err != nil {
				return err
			}
			res, err := a.resolver()
			if err != nil {
				return err
			}

			cands, err := res.Search(cmd.Context(), args[0], chain)
			if err != nil {
				return err
			}
			if asJSON {
				return report.WriteJSON(a.stdout, cands)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSYMBOL\tNAME\tADDRESS")
			for _, c := range cands {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ExternalID, c.Symbol, c.Name, c.ContractAddress)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
