package main

import "github.com/KaramelBytes/labdash/cmd"

func main() {
	cmd.Execute()
}
