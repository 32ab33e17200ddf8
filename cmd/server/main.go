package main

import "github.com/localjobs/identity/app"

func main() {
	app.New(nil).Run()
}
