package cmd

import (
	"context"
	"fmt"
	"log"

	"SyncFM/config"
	"SyncFM/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO媒体桶管理",
	Long:  `查看MinIO媒体存储桶中的对象，支持按前缀列出对象与查看统计信息。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		client := storage.GetMinioClient()
		ctx := context.Background()
		objects := client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		})

		var count int
		var totalSize int64
		for object := range objects {
			if object.Err != nil {
				log.Fatalf("列出对象失败: %v", object.Err)
			}
			count++
			totalSize += object.Size
			if !minioStats {
				fmt.Printf("  %s (%d bytes)\n", object.Key, object.Size)
			}
		}

		if minioStats {
			fmt.Printf("\n对象总数: %d, 总大小: %d bytes\n", count, totalSize)
		}

		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤对象")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "只显示存储桶统计信息")

	minioCmd.Example = `  # 列出所有媒体对象
  syncfm_server minio

  # 按前缀过滤
  syncfm_server minio -p "media/"

  # 显示存储桶统计信息
  syncfm_server minio -s`
}
