package banner

import (
	"fmt"
	"strings"
)

const banner = `
██████╗  █████╗  ██████╗██╗  ██╗ ██████╗██╗  ██╗ █████╗ ███╗   ██╗███╗   ██╗███████╗██╗
██╔══██╗██╔══██╗██╔════╝██║ ██╔╝██╔════╝██║  ██║██╔══██╗████╗  ██║████╗  ██║██╔════╝██║
██████╔╝███████║██║     █████╔╝ ██║     ███████║███████║██╔██╗ ██║██╔██╗ ██║█████╗  ██║
██╔══██╗██╔══██║██║     ██╔═██╗ ██║     ██╔══██║██╔══██║██║╚██╗██║██║╚██╗██║██╔══╝  ██║
██████╔╝██║  ██║╚██████╗██║  ██╗╚██████╗██║  ██║██║  ██║██║ ╚████║██║ ╚████║███████╗███████╗
╚═════╝ ╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝╚═╝  ╚═══╝╚══════╝╚══════╝
`

// Print writes the startup banner with the effective runtime info.
func Print(handle, gatewayAddr, dbPath, sources, version string, peerAddrs []string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Handle:   %s\n", handle)
	fmt.Printf("Gateway:  %s\n", gatewayAddr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	if len(peerAddrs) > 0 {
		fmt.Println("\n== Peer addresses =============================================")
		fmt.Println(strings.Join(peerAddrs, "\n"))
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /v1/contacts                    - List contacts")
	fmt.Println("POST /v1/chats/{id}/messages         - Send a message (JSON: text, image, audio)")
	fmt.Println("GET  /v1/chats/{id}/messages         - Read a conversation")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://%s/v1/contacts'\n", gatewayAddr)
	fmt.Printf("curl -X POST 'http://%s/v1/chats/bot-vision/messages' -d '{\"text\":\"hi\"}'\n", gatewayAddr)
}
