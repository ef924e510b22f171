// Package version 构建版本信息
package version

import (
	"os"
	"strings"
)

var (
	// Version 版本号，构建时通过 -ldflags 注入；为 "dev" 时尝试读取 VERSION 文件
	Version = "dev"

	// BuildTime 构建时间，通过 -ldflags 注入
	BuildTime = ""

	// GitCommit Git 提交哈希，通过 -ldflags 注入
	GitCommit = ""
)

func init() {
	if Version == "dev" {
		Version = readVersionFile("VERSION", "../VERSION")
	}
}

// readVersionFile 依次尝试 paths，读不到时返回 "dev"
func readVersionFile(paths ...string) string {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if v := strings.TrimPrefix(strings.TrimSpace(string(data)), "v"); v != "" {
			return v
		}
	}
	return "dev"
}

// GetVersion 完整版本信息
func GetVersion() string {
	v := "v" + Version
	if BuildTime != "" {
		v += " (built " + BuildTime + ")"
	}
	if GitCommit != "" {
		commit := GitCommit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		v += " commit " + commit
	}
	return v
}

// GetShortVersion 简短版本号
func GetShortVersion() string {
	return "v" + Version
}
