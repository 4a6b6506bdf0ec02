package cmd

import (
	"SyncFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动SyncFM服务器",
	Long:  `启动SyncFM协同播放系统的HTTP服务器，提供分组播放API与会话通道`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
