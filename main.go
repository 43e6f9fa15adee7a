package main

import "dashcheck/cmd"

func main() {
	cmd.Execute()
}
