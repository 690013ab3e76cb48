package main

import "trendwatch-backend/cmd/trends-cli/cmd"

func main() {
	cmd.Execute()
}
