package main

import "github.com/dbsmedya/dcp/cmd/dcp/cmd"

func main() {
	cmd.Execute()
}
