package main

import "github.com/xeocast/xeocast-admin-workers-sub001/cmd"

func main() {
	cmd.Execute()
}
