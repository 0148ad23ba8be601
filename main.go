package main

import "pcbuild-agent/cmd"

func main() {
	cmd.Execute()
}
