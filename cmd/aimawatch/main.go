package main

import (
	"aimawatch-backend/cmd/aimawatch/commands"
	"aimawatch-backend/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
