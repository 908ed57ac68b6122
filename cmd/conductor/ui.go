package main

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/conductor-hq/conductor/internal/config"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Run the server and open the web UI",
	Long:  `Start the conductor server and open the dashboard in a browser.`,
	RunE:  runUI,
}

func init() {
	uiCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runUI(cmd *cobra.Command, args []string) error {
	port := serverPort
	if port == 0 {
		if cfg, err := config.Load(); err == nil {
			port = cfg.Server.Port
		} else {
			port = 3001
		}
	}
	url := fmt.Sprintf("http://localhost:%d", port)

	go func() {
		// Give the listener a moment before pointing a browser at it.
		time.Sleep(500 * time.Millisecond)
		if err := openBrowser(url); err != nil {
			log.Printf("open browser at %s: %v", url, err)
		}
	}()

	return runServer(cmd, args)
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
