package main

import (
	"strings"

	"github.com/spf13/cobra"

	"brewcore/internal/stagegraph"
)

func newStagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "stages",
		Short:       "List the stage graph",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			stages := stagegraph.Default().Stages()
			return ctx.emit(cmd, stages, func() {
				rows := make([][]string, 0, len(stages))
				for _, st := range stages {
					contexts := make([]string, 0, len(st.AllowedContexts))
					for _, c := range st.AllowedContexts {
						contexts = append(contexts, string(c))
					}
					rows = append(rows, []string{st.ID, st.Name, yesNo(st.IsRequired), dash(st.Requires), dash(st.Excludes), strings.Join(contexts, ",")})
				}
				printTable(cmd, []string{"ID", "Name", "Required", "Requires", "Excludes", "Contexts"}, rows)
			})
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
