package main

import (
	"comicsqueeze/cmd"
)

func main() {
	cmd.Execute()
}
