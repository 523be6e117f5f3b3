package main

import "devlink-backend/cmd"

func main() {
	cmd.Run()
}
