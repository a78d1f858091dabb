package main

import "feedback-bot/cmd"

func main() {
	cmd.Execute()
}
