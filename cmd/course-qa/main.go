package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/courselab/course-qa/cmd/course-qa/app"
)

func main() {
	app.NewApp().Run()
}
