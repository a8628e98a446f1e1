package tools

import (
	"context"
	"os"
	"runtime"
	"time"
)

type SystemInfoArgs struct{}

func SystemInfo() Def {
	return MustNewDef("system_info",
		"Return the operating system, current working directory, user and current date.",
		func(context.Context, SystemInfoArgs) (map[string]any, error) {
			return Environment(), nil
		})
}

// Environment describes the machine the assistant runs on. Prompts use it
// too.
func Environment() map[string]any {
	wd, _ := os.Getwd()
	host, _ := os.Hostname()
	return map[string]any{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"cwd":      wd,
		"hostname": host,
		"user":     os.Getenv("USER"),
		"shell":    os.Getenv("SHELL"),
		"date":     time.Now().Format("Monday, January 2, 2006 15:04"),
	}
}

// Builtin returns every tool the assistant ships with.
func Builtin() []Def {
	return []Def{Bash(), SystemInfo()}
}
