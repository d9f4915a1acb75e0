package main

import "clipmux/cmd"

func main() {
	cmd.Execute()
}
