package main

import "github.com/Sean-China/auto-update/cmd/fpslocker-sync/cmd"

func main() {
	cmd.Execute()
}
