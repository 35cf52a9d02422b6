// chatctl - command-line client for WhatsApp chat exports.
package main

import (
	"os"
	"whatsapp-chat-parser/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
