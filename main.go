package main

import "github.com/frahmantamala/order-management/cmd"

func main() {
	cmd.Execute()
}
