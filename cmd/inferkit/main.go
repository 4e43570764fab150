// inferkit 表格 / 图像推理服务
//
//	inferkit serve            # 加载全部用例并启动 HTTP 服务
//	inferkit check            # 只加载制品并打印摘要（部署前检查）
//	inferkit version
//
// 进程配置来自 INFERKIT_* 环境变量，用例配置来自 INFERKIT_USECASES 指向的 YAML。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "inferkit",
	Short:         "Config-driven tabular and image inference service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "inferkit %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the use-case config (overrides INFERKIT_USECASES)")
	rootCmd.PersistentFlags().String("artifacts", "", "Artifact root: directory, http(s):// or gs:// (overrides INFERKIT_ARTIFACT_ROOT)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
