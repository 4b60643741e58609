// Package main 启动 folderrelay 服务.
package main

import (
	"fmt"
	"os"

	"github.com/yeisme/folderrelay/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
