package main

import (
	"marketbrief/cmd/handlers"
	"marketbrief/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
