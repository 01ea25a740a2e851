package main

import "github.com/tabtrain/tabtrain/cmd/tabtrain/cmd"

func main() {
	cmd.Execute()
}
