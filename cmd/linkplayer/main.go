package main

import "github.com/JakeFAU/linkplayer/cmd"

func main() {
	cmd.Execute()
}
