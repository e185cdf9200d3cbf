package main

import (
	"embed"
	"log"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"whisperdesk/internal/logging"
)

const version = "0.1.0"

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	app := NewApp()

	wailsLog, err := logging.New(logging.LevelInfo, logging.FormatConsole)
	if err != nil {
		wailsLog = zap.NewNop()
	}
	defer func() { _ = wailsLog.Sync() }()

	err = wails.Run(&options.App{
		Title:  "WhisperDesk",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
		Logger: logging.NewWailsLogger(wailsLog),
	})
	if err != nil {
		log.Fatal(err)
	}
}
