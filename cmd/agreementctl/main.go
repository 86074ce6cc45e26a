// Command agreementctl inspects an agreement file from the terminal using the
// same segmentation, expansion and ranking as the portal, and generates
// admin API keys.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/document"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/excerpt"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/ranker"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/segmenter"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/synonym"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/auth/apikey"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "agreementctl",
		Usage: "Inspect and query a service agreement offline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(c.String("log-level"), "text")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "sections",
				Usage:     "List the headings detected in an agreement",
				ArgsUsage: "<file>",
				Action:    sectionsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "kinds",
						Usage: "Show which heuristic recognised each heading",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Rank agreement sections against a question",
				ArgsUsage: "<file> <question>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of sections to print",
						Value:   ranker.DefaultLimit,
					},
					&cli.IntFlag{
						Name:  "excerpt-length",
						Usage: "Maximum excerpt length in characters",
						Value: excerpt.DefaultLength,
					},
					&cli.IntFlag{
						Name:  "token-limit",
						Usage: "Maximum number of expanded search terms",
						Value: synonym.DefaultLimit,
					},
				},
			},
			{
				Name:      "expand",
				Usage:     "Print the search terms a question expands to",
				ArgsUsage: "<question>",
				Action:    expandCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "token-limit",
						Usage: "Maximum number of expanded search terms",
						Value: synonym.DefaultLimit,
					},
				},
			},
			{
				Name:   "keygen",
				Usage:  "Generate an admin API key and the digest to put in admin.keys",
				Action: keygenCommand,
			},
		},
	}
}

func loadSections(ctx context.Context, path string) ([]segmenter.Section, error) {
	src := &document.FileSource{Path: path}
	text, err := src.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	return segmenter.Segment(text), nil
}

func sectionsCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one agreement file")
	}
	sections, err := loadSections(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	out := c.App.Writer
	for i, s := range sections {
		if c.Bool("kinds") {
			fmt.Fprintf(out, "%3d  %-16s %s\n", i+1, segmenter.Classify(s.Heading), s.Heading)
			continue
		}
		fmt.Fprintf(out, "%3d  %s\n", i+1, s.Heading)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("expected an agreement file and a question")
	}
	sections, err := loadSections(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	question := strings.Join(c.Args().Tail(), " ")

	expander := synonym.NewExpander(synonym.DefaultTable(), synonym.WithLimit(c.Int("token-limit")))
	results := ranker.New(expander).Search(sections, question, c.Int("limit"))

	out := c.App.Writer
	if len(results) == 0 {
		fmt.Fprintln(out, "No matching sections.")
		if suggestions := expander.Suggest(4); len(suggestions) > 0 {
			fmt.Fprintf(out, "Try asking about: %s\n", strings.Join(suggestions, ", "))
		}
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "[%d] %s (score %d)\n", i+1, r.Heading, r.Score)
		fmt.Fprintf(out, "    %s\n\n", excerpt.Build(r.Body, c.Int("excerpt-length")))
	}
	return nil
}

func expandCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("expected a question")
	}
	expander := synonym.NewExpander(synonym.DefaultTable(), synonym.WithLimit(c.Int("token-limit")))
	for _, term := range expander.Expand(strings.Join(c.Args().Slice(), " ")) {
		fmt.Fprintln(c.App.Writer, term)
	}
	return nil
}

func keygenCommand(c *cli.Context) error {
	key, err := apikey.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "key:  %s\nhash: %s\n", key, apikey.HashKey(key))
	return nil
}
