package main

import "github.com/ValentinKolb/cedar/cmd"

func main() {
	cmd.Execute()
}
