package main

import "learnhub_backend/internal/app"

func main() {
	app.Run()
}
