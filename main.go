package main

import "github.com/frahmantamala/payment-reconciliation/cmd"

func main() {
	cmd.Execute()
}
