package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every use case and print an artifact summary",
	Long:  "Loads all artifacts and builds every pipeline without serving. Exits non-zero if any use case fails to load.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(env)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		rt, err := bootstrap(ctx, env, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)), nil)
		if err != nil {
			return fmt.Errorf("artifact check failed: %w", err)
		}
		defer rt.close(context.Background())

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-12s  %-28s  %-8s  %s\n", "Use case", "Route", "Version", "Nodes")
		fmt.Fprintln(out, strings.Repeat("─", 80))
		for _, uc := range rt.useCases {
			h := uc.Health()
			nodes := make([]string, 0, len(uc.Pipeline.Nodes))
			for _, n := range uc.Pipeline.Nodes {
				nodes = append(nodes, n.Name())
			}
			ver := h.ModelVersion
			if ver == "" {
				ver = "-"
			}
			fmt.Fprintf(out, "%-12s  %-28s  %-8s  %s\n", uc.Name, uc.Route, ver, strings.Join(nodes, " -> "))
			for _, p := range h.ArtifactPaths {
				fmt.Fprintf(out, "  %s\n", p)
			}
		}
		fmt.Fprintf(out, "\n%d use case(s) loaded\n", len(rt.useCases))
		return nil
	},
}
