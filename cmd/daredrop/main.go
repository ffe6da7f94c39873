package main

import "github.com/zfogg/daredrop/internal/cmd"

func main() {
	cmd.Execute()
}
