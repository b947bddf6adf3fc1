package main

import "ai-chat-app/backend/internal/cli"

func main() {
	cli.Execute()
}
