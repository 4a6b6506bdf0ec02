package main

import (
	"SyncFM/cmd"
	"log"
)

func main() {
	cmd.Execute()
	// If Execute() had a problem, Cobra would have called os.Exit.
	// If we reach here, it means the Cobra command completed successfully
	// (for the server command: the server has received a stop signal and shut down).
	log.Println("Application command execution finished or server started.")
}
