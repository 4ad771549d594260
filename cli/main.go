package main

import (
	"log/slog"

	"github.com/morichikawa/echa25/cli/cmd"
	"github.com/morichikawa/echa25/internal/logging"
)

func main() {
	// Errors only unless LOG_LEVEL says otherwise; the board owns the terminal.
	logging.Init(slog.LevelError)
	cmd.Execute()
}
