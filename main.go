package main

import "packrat/cmd"

func main() {
	cmd.Execute()
}
