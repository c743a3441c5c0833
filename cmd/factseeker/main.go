package main

import (
	"factseeker/cmd/handlers"
	"factseeker/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
