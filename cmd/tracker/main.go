package main

import "github.com/rudransh-shrivastava/peer-share/internal/tracker/cmd"

func main() {
	cmd.Execute()
}
