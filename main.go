package main

import "github.com/glowus/planpress/cmd"

func main() {
	cmd.Execute()
}
