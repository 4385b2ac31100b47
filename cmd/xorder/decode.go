package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pg-sharding/xorder/pkg/continuation"
	"github.com/pg-sharding/xorder/pkg/models/value"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [token-file|-]",
	Short: "validate a continuation token and describe where it resumes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := readToken(args[0])
		if err != nil {
			return err
		}
		s, err := continuation.Unmarshal(b)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		target := s.TargetContinuation()
		fmt.Fprintf(out, "format:    %s\n", s.Format())
		fmt.Fprintf(out, "partition: %s\n", target.Range)
		fmt.Fprintf(out, "token:     %q\n", target.Token)
		fmt.Fprintf(out, "keys:      %s\n", value.FormatTuple(s.Keys()))
		fmt.Fprintf(out, "rid:       %s\n", s.ResumeRid())
		fmt.Fprintf(out, "skip:      %d\n", s.Skip())
		if ls, ok := s.(continuation.LegacyState); ok {
			if ls.Filter != nil {
				fmt.Fprintf(out, "filter:    %s\n", *ls.Filter)
			} else {
				fmt.Fprintln(out, "filter:    null")
			}
		}
		return nil
	},
}
