package main

import "peerbridge/internal/client/cmd"

func main() {
	cmd.Execute()
}
