package banner

import (
	"fmt"
)

const banner = `
██╗  ██╗██╗   ██╗██████╗ ██████╗ ██╗     ███████╗
██║  ██║██║   ██║██╔══██╗██╔══██╗██║     ██╔════╝
███████║██║   ██║██║  ██║██║  ██║██║     █████╗
██╔══██║██║   ██║██║  ██║██║  ██║██║     ██╔══╝
██║  ██║╚██████╔╝██████╔╝██████╔╝███████╗███████╗
╚═╝  ╚═╝ ╚═════╝ ╚═════╝ ╚═════╝ ╚══════╝╚══════╝
`

// Print writes the startup banner and the effective runtime settings.
func Print(addr, dbPath, sources, version string, channels []string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	if len(channels) > 0 {
		fmt.Printf("Channels: %v\n", channels)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/conversations/direct        - Send a direct message")
	fmt.Println("GET  /v1/conversations               - List visible conversations")
	fmt.Println("POST /v1/support                     - File a support ticket")
	fmt.Println("GET  /v1/unread                      - Per-category unread flags")
	fmt.Println("GET  /v1/events                      - Websocket event stream")
	fmt.Println("\n== Production? =================================================")
	fmt.Println("Set a proper storage path (--db)")
	fmt.Println("Configure API keys under security.api_keys")
}
