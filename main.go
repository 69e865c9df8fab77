package main

import "github.com/crystaldolphin/tgmirror/cmd"

func main() {
	cmd.Execute()
}
