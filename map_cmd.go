package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/appdist/internal/payload"
)

func newMapCmd() *cobra.Command {
	var (
		fields []string
		input  string
	)

	cmd := &cobra.Command{
		Use:   "map <kind>",
		Short: "Show the update payload for a set of form values",
		Long: `Map form values to the backend update payload for a form kind, without
contacting the backend. Values come from a JSON object (--input, "-" for
stdin) and --field overrides.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			kind, err := payload.ParseKind(args[0])
			if err != nil {
				return err
			}

			values, err := readValues(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			overrides, err := parseSets(fields)
			if err != nil {
				return err
			}

			for k, v := range overrides {
				values[k] = v
			}

			p, err := payload.Map(kind, values)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return printJSON(cc.Out, p)
			}

			fmt.Fprintf(cc.Out, "PUT %s/%s/<id>\n\n", cc.Cfg.Backend.UpdatePath, kind.Segment())
			printKeyValues(cc.Out, [2]string{"FIELD", "VALUE"}, p)

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&fields, "field", nil, "form field=value (repeatable)")
	cmd.Flags().StringVar(&input, "input", "", `JSON object of form values ("-" for stdin)`)

	return cmd
}

// readValues decodes a JSON object from path, or returns an empty map when
// path is empty. Numbers keep their literal form.
func readValues(stdin io.Reader, path string) (map[string]any, error) {
	values := map[string]any{}
	if path == "" {
		return values, nil
	}

	r := stdin

	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()

		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}

	return values, nil
}
