package main

import (
	"embed"
	"os"
	"strings"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
)

//go:embed all:frontend/dist
var assets embed.FS

// parseStartupPattern scans args for a serenity:// link and returns the
// pattern ID it names, lowercased. Returns "" if no link is found or the ID
// is empty.
func parseStartupPattern(args []string) string {
	const scheme = "serenity://"
	for _, arg := range args {
		if strings.HasPrefix(arg, scheme) {
			id := strings.TrimPrefix(arg, scheme)
			id = strings.TrimRight(id, "/")
			return strings.ToLower(strings.TrimSpace(id))
		}
	}
	return ""
}

func main() {
	app := NewApp()
	app.startupPattern = parseStartupPattern(os.Args[1:])

	err := wails.Run(&options.App{
		Title:     "Serenity",
		Width:     720,
		Height:    720,
		MinWidth:  360,
		MinHeight: 420,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 18, G: 24, B: 38, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Linux: &linux.Options{
			ProgramName: "serenity",
		},
		Bind: []interface{}{
			app,
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
