package main

import "github.com/mishka251/goszakupki-parces/cmd"

func main() {
	cmd.Execute()
}
