package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/plantd/cmd/plantd/app"
)

func main() {
	app.NewApp().Run()
}
