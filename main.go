package main

import "github.com/frahmantamala/dashboard-management/cmd"

func main() {
	cmd.Execute()
}
