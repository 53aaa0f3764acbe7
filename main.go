package main

import "github.com/Kirachon/dsr-payment-service/cmd"

func main() {
	cmd.Execute()
}
