package main

import (
	"github.com/mantlenetworkio/mantle-fp/op-program/client"
)

func main() {
	client.Main()
}
