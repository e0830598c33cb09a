package main

import "silk-catalog/internal/cmd"

func main() {
	cmd.Execute()
}
