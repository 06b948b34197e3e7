package main

import "github.com/kamusis/memview/cmd"

func main() {
	cmd.Execute()
}
