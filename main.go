package main

import "github.com/nextlevelbuilder/scribe/cmd"

func main() {
	cmd.Execute()
}
