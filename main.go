package main

import "github.com/reidsanders/danbooru-utility/cmd"

func main() {
	cmd.Execute()
}
