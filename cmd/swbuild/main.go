package main

import "github.com/goplus/swbuild/cmd/swbuild/internal"

func main() {
	internal.Execute()
}
