package main

import "postmaker/bot"

func main() {
	bot.Start()
}
