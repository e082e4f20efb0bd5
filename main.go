package main

import "github.com/DominicWuest/dockerbisect/cmd"

func main() {
	cmd.Execute()
}
