package main

import "github.com/example/scooter-rentals/cmd"

func main() {
	cmd.Execute()
}
