package main

import "github.com/AmyangXYZ/rtseries/cmd/rtseries/cmd"

func main() {
	cmd.Execute()
}
