package main

import "unilib/cmd/libctl/command"

func main() {
	command.Execute()
}
