package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/config"
	"github.com/any-hub/any-cache/internal/logging"
)

// fetchOptions 描述 fetch 子命令的输入。
type fetchOptions struct {
	configPath string
	identifier string
	name       string
	noCache    bool
}

func newFetchCommand(code *int) *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "fetch IDENTIFIER NAME",
		Short: "经由缓存获取单个制品并写到 stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFlag, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			*code = runFetch(fetchOptions{
				configPath: config.ResolvePath(configFlag),
				identifier: args[0],
				name:       args[1],
				noCache:    noCache,
			})
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "跳过缓存直接回源")
	return cmd
}

// runFetch 复用服务端的缓存与上游组件拉取一个制品，正文写到 stdOut。
func runFetch(opts fetchOptions) int {
	cfg, logger, code := loadRuntimeConfig(opts.configPath)
	if code != 0 {
		return code
	}
	// stdout 留给制品正文。
	if cfg.Global.LogFilePath == "" {
		logger.SetOutput(stdErr)
	}

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化运行时失败: %v\n", err)
		return 1
	}

	route, ok := rt.registry.Lookup(opts.identifier)
	if !ok {
		fmt.Fprintf(stdErr, "未配置的 Source: %s\n", opts.identifier)
		return 1
	}

	var getOpts []cache.GetOption
	if opts.noCache {
		getOpts = append(getOpts, cache.SkipCache())
	}

	ctx := context.Background()
	result, err := rt.cacher.Lookup(ctx, route.Config.Name, opts.name, rt.fetcher.Producer(route.Source, opts.name), getOpts...)
	if err != nil {
		fmt.Fprintf(stdErr, "获取制品失败: %v\n", err)
		return 1
	}

	fields := logging.RequestFields(route.Config.Name, opts.name, string(result.Tier), "")
	fields["action"] = "fetch"
	fields["shared"] = result.Shared
	logger.WithFields(fields).Info("制品获取完成")

	fmt.Fprint(stdOut, result.Content)
	return 0
}
