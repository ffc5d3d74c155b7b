package main

import "github.com/samsaffron/markview/cmd"

func main() {
	cmd.Execute()
}
