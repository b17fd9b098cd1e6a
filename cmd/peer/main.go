package main

import "github.com/rudransh-shrivastava/peer-share/internal/peer/cmd"

func main() {
	cmd.Execute()
}
