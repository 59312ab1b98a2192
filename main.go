package main

import "github.com/NPSDC/sshash-go/cmd"

func main() {
	cmd.Execute()
}
